package database

import (
	"context"

	"github.com/gptkong/ip-quality-dashboard/internal/model"
)

// InsertDetectionRecord appends one immutable detection snapshot. Rows are
// never updated or deleted here; history accumulates.
func (db *DB) InsertDetectionRecord(ctx context.Context, serverID string, data []byte) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO detection_records (server_id, data, created_at) VALUES ($1, $2, NOW())",
		serverID, string(data),
	)
	return err
}

// ListDetectionRecords returns a server's full detection history, newest
// first.
func (db *DB) ListDetectionRecords(ctx context.Context, serverID string) ([]model.DetectionRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, server_id, data, created_at FROM detection_records
		 WHERE server_id = $1 ORDER BY created_at DESC`,
		serverID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.DetectionRecord{}
	for rows.Next() {
		var rec model.DetectionRecord
		var data string
		if err := rows.Scan(&rec.ID, &rec.ServerID, &data, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Data = []byte(data)
		out = append(out, rec)
	}
	return out, rows.Err()
}
