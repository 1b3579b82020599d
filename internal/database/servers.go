package database

import (
	"context"
	"database/sql"

	"github.com/gptkong/ip-quality-dashboard/internal/model"
)

// UpsertServer creates the server row on first sight of an id, or bumps
// updated_at on a known one. Concurrent upserts for the same id may race on
// which timestamp wins; that only affects list ordering, never history.
func (db *DB) UpsertServer(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO servers (id, created_at, updated_at) VALUES ($1, NOW(), NOW())
		 ON CONFLICT (id) DO UPDATE SET updated_at = NOW()`,
		id,
	)
	return err
}

func (db *DB) GetServer(ctx context.Context, id string) (*model.Server, error) {
	s := &model.Server{}
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, remark, created_at, updated_at FROM servers WHERE id = $1", id,
	).Scan(&s.ID, &s.Remark, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateRemark sets or clears the remark and bumps updated_at. Returns
// whether a row was affected.
func (db *DB) UpdateRemark(ctx context.Context, id string, remark *string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE servers SET remark = $2, updated_at = NOW() WHERE id = $1", id, remark,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListServersWithLatest returns every server joined with its newest detection
// payload, ordered by updated_at descending. The inner join deliberately
// drops servers that never submitted a detection report: they have no
// displayable state.
func (db *DB) ListServersWithLatest(ctx context.Context) ([]model.ServerWithData, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT s.id, s.remark, d.data, s.created_at, s.updated_at
		 FROM servers s
		 JOIN LATERAL (
		   SELECT data FROM detection_records
		   WHERE server_id = s.id
		   ORDER BY created_at DESC LIMIT 1
		 ) d ON true
		 ORDER BY s.updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ServerWithData{}
	for rows.Next() {
		var sw model.ServerWithData
		var data string
		if err := rows.Scan(&sw.ID, &sw.Remark, &data, &sw.CreatedAt, &sw.UpdatedAt); err != nil {
			return nil, err
		}
		sw.Data = []byte(data)
		out = append(out, sw)
	}
	return out, rows.Err()
}

// GetServerWithLatest is the single-server variant of ListServersWithLatest.
// A server row without any detection record reports ErrNotFound.
func (db *DB) GetServerWithLatest(ctx context.Context, id string) (*model.ServerWithData, error) {
	sw := &model.ServerWithData{}
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT s.id, s.remark, d.data, s.created_at, s.updated_at
		 FROM servers s
		 JOIN LATERAL (
		   SELECT data FROM detection_records
		   WHERE server_id = s.id
		   ORDER BY created_at DESC LIMIT 1
		 ) d ON true
		 WHERE s.id = $1`,
		id,
	).Scan(&sw.ID, &sw.Remark, &data, &sw.CreatedAt, &sw.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sw.Data = []byte(data)
	return sw, nil
}
