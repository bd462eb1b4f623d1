package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/treefix50/topten/internal/topten"
)

// MediaItem is a catalog row as written by the import API.
type MediaItem struct {
	topten.Item
	Path string `json:"path,omitempty"`
}

func (s *Store) SaveItems(ctx context.Context, items []MediaItem) error {
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("storage: item without id")
		}
		if !item.Kind.Valid() || item.Kind == topten.KindCollection {
			return fmt.Errorf("storage: item %s: unsupported kind %q", item.ID, item.Kind)
		}
	}

	now := s.clock().Unix()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO media_items (id, title, kind, parent_id, path, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title=excluded.title,
				kind=excluded.kind,
				parent_id=excluded.parent_id,
				path=excluded.path
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, item := range items {
			if _, err := stmt.ExecContext(ctx,
				item.ID,
				item.Name,
				string(item.Kind),
				nullString(item.ParentID),
				nullString(item.Path),
				now,
			); err != nil {
				return fmt.Errorf("storage: save item %s: %w", item.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteItems(ctx context.Context, ids []string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM media_items WHERE id IN (%s)", placeholders(len(ids)))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// ListItems filters the catalog. With AncestorID set, Recursive selects all
// descendants; otherwise only direct children match. Results are in
// insertion order.
func (s *Store) ListItems(ctx context.Context, query topten.ItemQuery) ([]topten.Item, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage: missing database connection")
	}

	var (
		sb    strings.Builder
		where []string
		args  []any
	)
	if query.AncestorID != "" && query.Recursive {
		sb.WriteString(`
			WITH RECURSIVE descendants(id) AS (
				SELECT id FROM media_items WHERE parent_id = ?
				UNION
				SELECT m.id FROM media_items m JOIN descendants d ON m.parent_id = d.id
			)
		`)
		args = append(args, query.AncestorID)
		where = append(where, "m.id IN (SELECT id FROM descendants)")
	} else if query.AncestorID != "" {
		where = append(where, "m.parent_id = ?")
		args = append(args, query.AncestorID)
	}
	if len(query.Kinds) > 0 {
		where = append(where, fmt.Sprintf("m.kind IN (%s)", placeholders(len(query.Kinds))))
		for _, kind := range query.Kinds {
			args = append(args, string(kind))
		}
	}
	if query.Name != "" {
		where = append(where, "m.title = ?")
		args = append(args, query.Name)
	}

	sb.WriteString("SELECT m.id, m.title, m.kind, m.parent_id FROM media_items m")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY m.created_at, m.rowid")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]topten.Item, error) {
	items := []topten.Item{}
	for rows.Next() {
		var (
			item     topten.Item
			kind     string
			parentID sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Name, &kind, &parentID); err != nil {
			return nil, err
		}
		item.Kind = topten.Kind(kind)
		item.ParentID = parentID.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (topten.Item, bool, error) {
	if s == nil || s.db == nil {
		return topten.Item{}, false, fmt.Errorf("storage: missing database connection")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, kind, parent_id FROM media_items WHERE id = ?
	`, id)
	if err != nil {
		return topten.Item{}, false, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil || len(items) == 0 {
		return topten.Item{}, false, err
	}
	return items[0], true, nil
}
