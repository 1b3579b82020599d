package database

import (
	"context"
	"database/sql"

	"github.com/gptkong/ip-quality-dashboard/internal/model"
)

func (db *DB) LogAudit(ctx context.Context, entry model.AuditEntry) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO audit_log (username, action, server_id, detail, ip_address)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.Username, entry.Action, entry.ServerID, entry.Detail, entry.IPAddress,
	)
	return err
}

func (db *DB) ListAuditLog(ctx context.Context, limit, offset int) ([]model.AuditEntry, int, error) {
	var total int
	_ = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&total)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, action, server_id, detail, ip_address, created_at
		 FROM audit_log
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var serverID, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &serverID, &detail, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.ServerID = serverID.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
