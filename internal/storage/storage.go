// Package storage is the SQLite-backed library: catalog items, users,
// playback state and collections.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

type Options struct {
	BusyTimeout time.Duration
	Synchronous string
	CacheSize   int
}

func Open(path string, options Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	synchronous := options.Synchronous
	if synchronous == "" {
		synchronous = "NORMAL"
	}
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA synchronous=%s", synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", int(options.BusyTimeout/time.Millisecond)),
		"PRAGMA temp_store=MEMORY",
		fmt.Sprintf("PRAGMA cache_size=%d", options.CacheSize),
		"PRAGMA journal_size_limit=67108864",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}
	if err := store.MigrateSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now()
	}
	return time.Now()
}

// withTx runs fn in a transaction and commits if fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
