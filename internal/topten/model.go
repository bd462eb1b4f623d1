package topten

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies catalog items.
type Kind string

const (
	KindMovie      Kind = "movie"
	KindSeries     Kind = "series"
	KindSeason     Kind = "season"
	KindEpisode    Kind = "episode"
	KindCollection Kind = "collection"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMovie, KindSeries, KindSeason, KindEpisode, KindCollection:
		return true
	}
	return false
}

// Item is a catalog entry. ParentID links episodes to seasons or series and
// seasons to series.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	ParentID string `json:"parentId,omitempty"`
}

// Activity is the last-played record of one user for one item.
type Activity struct {
	UserID     string    `json:"userId"`
	ItemID     string    `json:"itemId"`
	LastPlayed time.Time `json:"lastPlayed"`
}

// Tally aggregates recent playback for a ranked item. It lives for a single
// run only.
type Tally struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PlayCount       int    `json:"playCount"`
	UniqueUserCount int    `json:"uniqueUserCount"`
}

// RankedSet is the ordered top-N output of one strategy.
type RankedSet struct {
	Kind    Kind             `json:"kind"`
	Items   []Item           `json:"items"`
	Tallies map[string]Tally `json:"tallies,omitempty"`
}

func (r RankedSet) Len() int { return len(r.Items) }

type ItemQuery struct {
	Kinds      []Kind
	Recursive  bool
	AncestorID string
	Name       string
}

type Catalog interface {
	ListItems(ctx context.Context, query ItemQuery) ([]Item, error)
	LinkedChildren(ctx context.Context, collectionID string) ([]Item, error)
}

type UserDirectory interface {
	ListUsers(ctx context.Context) ([]string, error)
}

type ActivityStore interface {
	GetActivity(ctx context.Context, userID, itemID string) (Activity, bool, error)
}

type CollectionStore interface {
	CreateCollection(ctx context.Context, name string, locked bool) (Item, error)
	AddToCollection(ctx context.Context, collectionID string, itemIDs []string) error
	RemoveFromCollection(ctx context.Context, collectionID string, itemIDs []string) error
}

const (
	DefaultCollectionName       = "Top Ten"
	DefaultTopItemCount         = 10
	DefaultRefreshIntervalHours = 24
	DefaultDaysToConsider       = 30
)

// Config is the per-run configuration. It is passed by value into every run
// and never shared between runs.
type Config struct {
	CollectionName       string `json:"collectionName" yaml:"collection_name"`
	TopItemCount         int    `json:"topItemCount" yaml:"top_item_count"`
	RefreshIntervalHours int    `json:"refreshIntervalHours" yaml:"refresh_interval_hours"`
	DaysToConsider       int    `json:"daysToConsider" yaml:"days_to_consider"`
}

func DefaultConfig() Config {
	return Config{
		CollectionName:       DefaultCollectionName,
		TopItemCount:         DefaultTopItemCount,
		RefreshIntervalHours: DefaultRefreshIntervalHours,
		DaysToConsider:       DefaultDaysToConsider,
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CollectionName) == "" {
		errs = append(errs, errors.New("collection name is empty"))
	}
	if c.TopItemCount < 0 {
		errs = append(errs, fmt.Errorf("top item count %d is negative", c.TopItemCount))
	}
	if c.RefreshIntervalHours <= 0 {
		errs = append(errs, fmt.Errorf("refresh interval %dh must be positive", c.RefreshIntervalHours))
	}
	if c.DaysToConsider < 0 {
		errs = append(errs, fmt.Errorf("days to consider %d is negative", c.DaysToConsider))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

// Cutoff returns the start of the playback window. Plays at exactly the
// cutoff are inside the window.
func (c Config) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(c.DaysToConsider) * 24 * time.Hour)
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalHours) * time.Hour
}
