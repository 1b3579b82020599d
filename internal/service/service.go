package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/database"
	"github.com/gptkong/ip-quality-dashboard/internal/model"
	"github.com/gptkong/ip-quality-dashboard/internal/report"
	"github.com/gptkong/ip-quality-dashboard/internal/unlock"
)

var (
	// ErrServerNotFound is returned by lookups and updates that reference an
	// unknown server id.
	ErrServerNotFound = errors.New("server not found")
	// ErrNoPlatformData is returned when an unlock submission parses to zero
	// platform entries.
	ErrNoPlatformData = errors.New("no platform data found in content")
)

// ValidationError carries the per-field messages from a rejected detection
// payload. The submission writes nothing when this is returned.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid detection data: %s", strings.Join(e.Details, "; "))
}

// Store is the persistence surface the service needs. *database.DB satisfies
// it; tests use an in-memory fake.
type Store interface {
	UpsertServer(ctx context.Context, id string) error
	GetServer(ctx context.Context, id string) (*model.Server, error)
	UpdateRemark(ctx context.Context, id string, remark *string) (bool, error)
	ListServersWithLatest(ctx context.Context) ([]model.ServerWithData, error)
	GetServerWithLatest(ctx context.Context, id string) (*model.ServerWithData, error)
	InsertDetectionRecord(ctx context.Context, serverID string, data []byte) error
	ListDetectionRecords(ctx context.Context, serverID string) ([]model.DetectionRecord, error)
	InsertPlatformUnlock(ctx context.Context, rec model.PlatformUnlockRecord) error
	LatestPlatformUnlock(ctx context.Context, serverID string) (*model.PlatformUnlockRecord, error)
	PlatformUnlockHistory(ctx context.Context, serverID string) ([]model.PlatformUnlockRecord, error)
}

type Service struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// SubmitDetection validates a detection payload and, only if it validates,
// upserts the server and appends the payload as a new immutable record. The
// stored bytes are the sanitized envelope exactly as it validated.
func (s *Service) SubmitDetection(ctx context.Context, serverID string, data json.RawMessage) (*report.Submission, error) {
	sub, details := report.Validate(data)
	if len(details) > 0 {
		return nil, &ValidationError{Details: details}
	}

	if err := s.store.UpsertServer(ctx, serverID); err != nil {
		return nil, fmt.Errorf("failed to upsert server: %w", err)
	}
	if err := s.store.InsertDetectionRecord(ctx, serverID, sub.Raw); err != nil {
		return nil, fmt.Errorf("failed to insert detection record: %w", err)
	}

	s.log.Info("detection report stored",
		zap.String("server_id", serverID),
		zap.Bool("dual_stack", sub.DualStack),
	)
	return sub, nil
}

// SubmitUnlock parses raw unlock-tool output and stores the result together
// with the verbatim text. Submissions that parse to zero platforms are
// rejected without writing.
func (s *Service) SubmitUnlock(ctx context.Context, serverID, content string) (*unlock.Result, error) {
	result := unlock.Parse(content)
	platforms := append(append([]unlock.PlatformStatus{}, result.Platforms...), result.IPv6Platforms...)
	if len(platforms) == 0 {
		return nil, ErrNoPlatformData
	}

	if err := s.store.UpsertServer(ctx, serverID); err != nil {
		return nil, fmt.Errorf("failed to upsert server: %w", err)
	}

	rec := model.PlatformUnlockRecord{
		ServerID:     serverID,
		IPv4ASN:      optional(result.IPv4ASN),
		IPv4Location: optional(result.IPv4Location),
		Platforms:    platforms,
		RawContent:   optional(content),
		TestTime:     parseTestTime(result.TestTime),
	}
	if err := s.store.InsertPlatformUnlock(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to insert platform unlock: %w", err)
	}

	s.log.Info("platform unlock stored",
		zap.String("server_id", serverID),
		zap.Int("platforms", len(platforms)),
	)
	return &result, nil
}

// ListServers returns every server that has at least one detection record,
// newest update first, each with its latest payload.
func (s *Service) ListServers(ctx context.Context) ([]model.ServerWithData, error) {
	return s.store.ListServersWithLatest(ctx)
}

func (s *Service) GetServer(ctx context.Context, id string) (*model.ServerWithData, error) {
	srv, err := s.store.GetServerWithLatest(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrServerNotFound
	}
	return srv, err
}

func (s *Service) History(ctx context.Context, id string) ([]model.DetectionRecord, error) {
	if _, err := s.store.GetServer(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}
	return s.store.ListDetectionRecords(ctx, id)
}

// UpdateRemark sets or clears a server's remark. A nil remark clears it.
func (s *Service) UpdateRemark(ctx context.Context, id string, remark *string) error {
	ok, err := s.store.UpdateRemark(ctx, id, remark)
	if err != nil {
		return err
	}
	if !ok {
		return ErrServerNotFound
	}
	return nil
}

func (s *Service) LatestUnlock(ctx context.Context, id string) (*model.PlatformUnlockRecord, error) {
	rec, err := s.store.LatestPlatformUnlock(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrServerNotFound
	}
	return rec, err
}

func (s *Service) UnlockHistory(ctx context.Context, id string) ([]model.PlatformUnlockRecord, error) {
	return s.store.PlatformUnlockHistory(ctx, id)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseTestTime tries the timestamp shapes the detection tools emit. Unknown
// shapes degrade to nil rather than failing the submission.
func parseTestTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	layouts := []string{
		"2006-01-02 15:04:05 MST",
		"2006-01-02 15:04:05",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
