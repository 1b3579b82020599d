package model

import (
	"encoding/json"
	"time"

	"github.com/gptkong/ip-quality-dashboard/internal/unlock"
)

// Server is the identity entity for one reporting host. The ID is the
// caller-supplied opaque identifier, stable per physical host.
type Server struct {
	ID        string    `json:"id"`
	Remark    *string   `json:"remark,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ServerWithData is a server joined with its most recent detection payload,
// the unit the dashboard list and detail views render. Data is the stored
// JSON envelope exactly as it validated (single report or dual-stack array).
type ServerWithData struct {
	ID        string          `json:"id"`
	Remark    *string         `json:"remark,omitempty"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// DetectionRecord is one immutable detection snapshot. Records accumulate;
// "current state" is always the newest record at read time.
type DetectionRecord struct {
	ID        int64           `json:"id"`
	ServerID  string          `json:"serverId"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// PlatformUnlockRecord is one parsed unlock-report submission, keeping the
// verbatim original text for audit and re-parsing.
type PlatformUnlockRecord struct {
	ID           int64                   `json:"id"`
	ServerID     string                  `json:"serverId"`
	IPv4ASN      *string                 `json:"ipv4Asn"`
	IPv4Location *string                 `json:"ipv4Location"`
	Platforms    []unlock.PlatformStatus `json:"platforms"`
	RawContent   *string                 `json:"rawContent"`
	TestTime     *time.Time              `json:"testTime"`
	CreatedAt    time.Time               `json:"createdAt"`
}

type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	PassHash   string    `json:"-"`
	Role       string    `json:"role"`
	Active     bool      `json:"active"`
	AuthSource string    `json:"authSource"` // "local" or "ldap"
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type AuditEntry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	ServerID  string    `json:"serverId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
}
