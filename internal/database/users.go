package database

import (
	"context"
	"database/sql"

	"golang.org/x/crypto/bcrypt"

	"github.com/gptkong/ip-quality-dashboard/internal/model"
)

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, username, pass_hash, role, active, auth_source, created_at, updated_at FROM users WHERE username = $1",
		username,
	).Scan(&u.ID, &u.Username, &u.PassHash, &u.Role, &u.Active, &u.AuthSource, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, username, pass_hash, role, active, auth_source, created_at, updated_at FROM users ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PassHash, &u.Role, &u.Active, &u.AuthSource, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) CreateUser(ctx context.Context, username, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO users (username, pass_hash, role) VALUES ($1, $2, $3)",
		username, string(hash), role,
	)
	return err
}

func (db *DB) DeleteUser(ctx context.Context, username string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM users WHERE username = $1", username)
	return err
}

// AuthenticateUser returns the user when the password matches an active local
// account, nil otherwise.
func (db *DB) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	u, err := db.GetUserByUsername(ctx, username)
	if err != nil || u == nil || !u.Active {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PassHash), []byte(password)); err != nil {
		return nil, nil
	}
	return u, nil
}

// CreateLDAPUser auto-provisions (or refreshes) a directory-backed user row.
func (db *DB) CreateLDAPUser(ctx context.Context, username, role string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, pass_hash, role, auth_source)
		 VALUES ($1, '', $2, 'ldap')
		 ON CONFLICT(username) DO UPDATE SET
		   role = $2, auth_source = 'ldap', updated_at = NOW()`,
		username, role,
	)
	return err
}
