package storage

import "fmt"

const schemaMediaItems = `
CREATE TABLE IF NOT EXISTS media_items (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	kind TEXT NOT NULL,
	parent_id TEXT,
	path TEXT,
	created_at INTEGER NOT NULL
);`

const schemaMediaItemsIndexes = `
CREATE INDEX IF NOT EXISTS idx_media_items_kind_title ON media_items(kind, title);
CREATE INDEX IF NOT EXISTS idx_media_items_parent_id ON media_items(parent_id);
CREATE INDEX IF NOT EXISTS idx_media_items_created_at ON media_items(created_at);`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);`

const schemaPlaybackState = `
CREATE TABLE IF NOT EXISTS playback_state (
	media_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	last_played_at INTEGER NOT NULL DEFAULT 0,
	play_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (media_id, user_id),
	FOREIGN KEY (media_id) REFERENCES media_items(id) ON DELETE CASCADE,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);`

const schemaPlaybackStateIndexes = `
CREATE INDEX IF NOT EXISTS idx_playback_state_user_id ON playback_state(user_id, last_played_at DESC);`

// A collection is also a media_items row of kind 'collection' so it can be
// found by name like any other item.
const schemaCollections = `
CREATE TABLE IF NOT EXISTS collections (
	id TEXT PRIMARY KEY,
	locked INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (id) REFERENCES media_items(id) ON DELETE CASCADE
);`

const schemaCollectionItems = `
CREATE TABLE IF NOT EXISTS collection_items (
	collection_id TEXT NOT NULL,
	media_id TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	added_at INTEGER NOT NULL,
	PRIMARY KEY (collection_id, media_id),
	FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
	FOREIGN KEY (media_id) REFERENCES media_items(id) ON DELETE CASCADE
);`

const schemaCollectionItemsIndexes = `
CREATE INDEX IF NOT EXISTS idx_collection_items_collection_id ON collection_items(collection_id, position);
CREATE INDEX IF NOT EXISTS idx_collection_items_media_id ON collection_items(media_id);`

// Play times moved from Unix seconds to Unix nanoseconds.
const schemaPlaybackStateNanos = `
UPDATE playback_state SET last_played_at = last_played_at * 1000000000
WHERE last_played_at > 0 AND last_played_at < 100000000000;`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY
);`

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			schemaMediaItems,
			schemaMediaItemsIndexes,
			schemaUsers,
			schemaPlaybackState,
		},
	},
	{
		version: 2,
		statements: []string{
			schemaCollections,
			schemaCollectionItems,
			schemaCollectionItemsIndexes,
		},
	},
	{
		version: 3,
		statements: []string{
			schemaPlaybackStateIndexes,
		},
	},
	{
		version: 4,
		statements: []string{
			schemaPlaybackStateNanos,
		},
	},
}

func (s *Store) EnsureSchema() error {
	return s.MigrateSchema()
}

func (s *Store) MigrateSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	if _, err := s.db.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("storage: create schema_migrations table: %w", err)
	}

	current, err := s.currentSchemaVersion()
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.version <= current {
			continue
		}
		if err := s.applyMigration(migration); err != nil {
			return err
		}
		current = migration.version
	}

	return nil
}

func (s *Store) currentSchemaVersion() (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage: missing database connection")
	}

	var version int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("storage: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(migration migration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: start migration %d: %w", migration.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, statement := range migration.statements {
		if _, err = tx.Exec(statement); err != nil {
			return fmt.Errorf("storage: migration %d failed: %w", migration.version, err)
		}
	}

	if _, err = tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, migration.version); err != nil {
		return fmt.Errorf("storage: record migration %d: %w", migration.version, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit migration %d: %w", migration.version, err)
	}
	return nil
}
