package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/treefix50/topten/internal/topten"
)

// CreateCollection inserts an empty collection. Names are not unique.
func (s *Store) CreateCollection(ctx context.Context, name string, locked bool) (topten.Item, error) {
	item := topten.Item{
		ID:   uuid.NewString(),
		Name: name,
		Kind: topten.KindCollection,
	}
	now := s.clock().Unix()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO media_items (id, title, kind, created_at)
			VALUES (?, ?, ?, ?)
		`, item.ID, item.Name, string(item.Kind), now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO collections (id, locked, created_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, item.ID, locked, now, now)
		return err
	})
	if err != nil {
		return topten.Item{}, fmt.Errorf("storage: create collection %q: %w", name, err)
	}
	return item, nil
}

// AddToCollection appends itemIDs after the current members. Ids already
// present keep their position.
func (s *Store) AddToCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	now := s.clock().Unix()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position), -1) + 1 FROM collection_items WHERE collection_id = ?
		`, collectionID).Scan(&next); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO collection_items (collection_id, media_id, position, added_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(collection_id, media_id) DO NOTHING
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range itemIDs {
			res, err := stmt.ExecContext(ctx, collectionID, id, next, now)
			if err != nil {
				return fmt.Errorf("add %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				next++
			}
		}
		return touchCollection(ctx, tx, collectionID, now)
	})
	if err != nil {
		return fmt.Errorf("storage: add to collection %s: %w", collectionID, err)
	}
	return nil
}

func (s *Store) RemoveFromCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	now := s.clock().Unix()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		args := make([]any, 0, len(itemIDs)+1)
		args = append(args, collectionID)
		for _, id := range itemIDs {
			args = append(args, id)
		}
		query := fmt.Sprintf(`
			DELETE FROM collection_items
			WHERE collection_id = ? AND media_id IN (%s)
		`, placeholders(len(itemIDs)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return touchCollection(ctx, tx, collectionID, now)
	})
	if err != nil {
		return fmt.Errorf("storage: remove from collection %s: %w", collectionID, err)
	}
	return nil
}

func touchCollection(ctx context.Context, tx *sql.Tx, collectionID string, now int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE collections SET updated_at = ? WHERE id = ?`, now, collectionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("collection %s not found", collectionID)
	}
	return nil
}

// LinkedChildren returns the members of a collection in position order.
func (s *Store) LinkedChildren(ctx context.Context, collectionID string) ([]topten.Item, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage: missing database connection")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title, m.kind, m.parent_id
		FROM media_items m
		INNER JOIN collection_items ci ON m.id = ci.media_id
		WHERE ci.collection_id = ?
		ORDER BY ci.position, ci.added_at
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("storage: linked children: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// CollectionLocked reports the locked flag; ok is false for unknown ids.
func (s *Store) CollectionLocked(ctx context.Context, collectionID string) (locked bool, ok bool, err error) {
	if s == nil || s.db == nil {
		return false, false, fmt.Errorf("storage: missing database connection")
	}
	err = s.db.QueryRowContext(ctx, `SELECT locked FROM collections WHERE id = ?`, collectionID).Scan(&locked)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return locked, true, nil
}

var (
	_ topten.Catalog         = (*Store)(nil)
	_ topten.UserDirectory   = (*Store)(nil)
	_ topten.ActivityStore   = (*Store)(nil)
	_ topten.CollectionStore = (*Store)(nil)
)
