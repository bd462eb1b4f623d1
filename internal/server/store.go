package server

import (
	"context"
	"time"

	"github.com/treefix50/topten/internal/scheduler"
	"github.com/treefix50/topten/internal/storage"
	"github.com/treefix50/topten/internal/topten"
)

// LibraryStore defines the storage operations used by the HTTP API.
type LibraryStore interface {
	Ping(ctx context.Context) error
	SaveItems(ctx context.Context, items []storage.MediaItem) error
	GetItem(ctx context.Context, id string) (topten.Item, bool, error)
	ListItems(ctx context.Context, query topten.ItemQuery) ([]topten.Item, error)
	LinkedChildren(ctx context.Context, collectionID string) ([]topten.Item, error)
	CreateUser(ctx context.Context, user storage.User) error
	GetUser(ctx context.Context, id string) (storage.User, bool, error)
	GetUserByName(ctx context.Context, name string) (storage.User, bool, error)
	MarkPlayed(ctx context.Context, userID, itemID string, at time.Time) error
}

// Runner starts and reports top ten runs.
type Runner interface {
	Trigger() (string, error)
	Status() scheduler.Status
}

// ConfigSource returns the current run configuration, or nil.
type ConfigSource interface {
	TopTen() *topten.Config
}

// TaskInfo describes the scheduled task.
type TaskInfo interface {
	Name() string
	Key() string
	Category() string
	Description() string
}
