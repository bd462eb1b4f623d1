package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Store) CreateUser(ctx context.Context, user User) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}
	if user.ID == "" || user.Name == "" {
		return fmt.Errorf("storage: user id and name are required")
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, created_at)
		VALUES (?, ?, ?)
	`, user.ID, user.Name, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("storage: create user %s: %w", user.Name, err)
	}
	return nil
}

// ListUsers returns every user id in creation order.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage: missing database connection")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("storage: list users: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id string) (User, bool, error) {
	return s.queryUser(ctx, `SELECT id, name, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) GetUserByName(ctx context.Context, name string) (User, bool, error) {
	return s.queryUser(ctx, `SELECT id, name, created_at FROM users WHERE name = ?`, name)
}

func (s *Store) queryUser(ctx context.Context, query string, arg string) (User, bool, error) {
	if s == nil || s.db == nil {
		return User{}, false, fmt.Errorf("storage: missing database connection")
	}
	var (
		user      User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return user, true, nil
}
