package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/gptkong/ip-quality-dashboard/internal/model"
	"github.com/gptkong/ip-quality-dashboard/internal/unlock"
)

// InsertPlatformUnlock appends one parsed unlock-report row. The platform
// list is stored as JSON; the raw content is kept verbatim for audit.
func (db *DB) InsertPlatformUnlock(ctx context.Context, rec model.PlatformUnlockRecord) error {
	platforms, err := json.Marshal(rec.Platforms)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO platform_unlocks
		   (server_id, ipv4_asn, ipv4_location, platforms, raw_content, test_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		rec.ServerID, rec.IPv4ASN, rec.IPv4Location, string(platforms), rec.RawContent, rec.TestTime,
	)
	return err
}

func (db *DB) LatestPlatformUnlock(ctx context.Context, serverID string) (*model.PlatformUnlockRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, server_id, ipv4_asn, ipv4_location, platforms, raw_content, test_time, created_at
		 FROM platform_unlocks WHERE server_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		serverID,
	)
	rec, err := scanPlatformUnlock(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (db *DB) PlatformUnlockHistory(ctx context.Context, serverID string) ([]model.PlatformUnlockRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, server_id, ipv4_asn, ipv4_location, platforms, raw_content, test_time, created_at
		 FROM platform_unlocks WHERE server_id = $1
		 ORDER BY created_at DESC`,
		serverID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PlatformUnlockRecord{}
	for rows.Next() {
		rec, err := scanPlatformUnlock(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanPlatformUnlock(scan func(dest ...any) error) (*model.PlatformUnlockRecord, error) {
	rec := &model.PlatformUnlockRecord{}
	var platforms string
	if err := scan(&rec.ID, &rec.ServerID, &rec.IPv4ASN, &rec.IPv4Location,
		&platforms, &rec.RawContent, &rec.TestTime, &rec.CreatedAt); err != nil {
		return nil, err
	}
	// A corrupt platforms column degrades to an empty list rather than
	// failing the whole read.
	if err := json.Unmarshal([]byte(platforms), &rec.Platforms); err != nil {
		rec.Platforms = []unlock.PlatformStatus{}
	}
	return rec, nil
}
