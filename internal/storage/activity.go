package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/treefix50/topten/internal/topten"
)

// MarkPlayed records a play. The last played time never moves backwards.
// Times are stored as Unix nanoseconds.
func (s *Store) MarkPlayed(ctx context.Context, userID, itemID string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}
	if at.IsZero() {
		at = s.clock()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playback_state (media_id, user_id, last_played_at, play_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(media_id, user_id) DO UPDATE SET
			last_played_at = MAX(last_played_at, excluded.last_played_at),
			play_count = play_count + 1
	`, itemID, userID, at.UnixNano())
	if err != nil {
		return fmt.Errorf("storage: mark played %s/%s: %w", userID, itemID, err)
	}
	return nil
}

// GetActivity reports ok=false when the user never played the item.
func (s *Store) GetActivity(ctx context.Context, userID, itemID string) (topten.Activity, bool, error) {
	if s == nil || s.db == nil {
		return topten.Activity{}, false, fmt.Errorf("storage: missing database connection")
	}
	var lastPlayed int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_played_at FROM playback_state
		WHERE media_id = ? AND user_id = ?
	`, itemID, userID).Scan(&lastPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return topten.Activity{}, false, nil
	}
	if err != nil {
		return topten.Activity{}, false, fmt.Errorf("storage: get activity: %w", err)
	}
	if lastPlayed == 0 {
		return topten.Activity{}, false, nil
	}
	return topten.Activity{
		UserID:     userID,
		ItemID:     itemID,
		LastPlayed: time.Unix(0, lastPlayed).UTC(),
	}, true, nil
}
