package topten

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
)

const DefaultWorkers = 4

// Extractor turns per-user last-played records into per-item tallies.
//
// The activity store keeps a single last-played timestamp per user and item,
// so a user contributes at most one play per item. For movies PlayCount and
// UniqueUserCount are therefore always equal; for series PlayCount counts
// (episode, user) pairs.
type Extractor struct {
	Catalog  Catalog
	Activity ActivityStore
	// Workers bounds how many items are scanned concurrently.
	Workers int
}

func NewExtractor(catalog Catalog, activity ActivityStore, workers int) *Extractor {
	return &Extractor{Catalog: catalog, Activity: activity, Workers: workers}
}

// RecentUsers returns, in input order, the users whose last play of itemID is
// at or after cutoff.
func (e *Extractor) RecentUsers(ctx context.Context, itemID string, users []string, cutoff time.Time) ([]string, error) {
	var out []string
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		activity, ok, err := e.Activity.GetActivity(ctx, userID, itemID)
		if err != nil {
			return nil, fmt.Errorf("activity for user %s item %s: %w", userID, itemID, err)
		}
		if !ok || activity.LastPlayed.IsZero() {
			continue
		}
		if !activity.LastPlayed.Before(cutoff) {
			out = append(out, userID)
		}
	}
	return out, nil
}

func (e *Extractor) MovieTallies(ctx context.Context, movies []Item, users []string, cutoff time.Time) (map[string]Tally, error) {
	return e.tallies(ctx, movies, func(ctx context.Context, movie Item) (Tally, error) {
		recent, err := e.RecentUsers(ctx, movie.ID, users, cutoff)
		if err != nil {
			return Tally{}, err
		}
		return Tally{
			ID:              movie.ID,
			Name:            movie.Name,
			PlayCount:       len(recent),
			UniqueUserCount: len(recent),
		}, nil
	})
}

func (e *Extractor) SeriesTallies(ctx context.Context, series []Item, users []string, cutoff time.Time) (map[string]Tally, error) {
	return e.tallies(ctx, series, func(ctx context.Context, show Item) (Tally, error) {
		episodes, err := e.Catalog.ListItems(ctx, ItemQuery{
			Kinds:      []Kind{KindEpisode},
			Recursive:  true,
			AncestorID: show.ID,
		})
		if err != nil {
			return Tally{}, fmt.Errorf("episodes of series %s: %w", show.ID, err)
		}

		tally := Tally{ID: show.ID, Name: show.Name}
		unique := make(map[string]struct{})
		for _, episode := range episodes {
			recent, err := e.RecentUsers(ctx, episode.ID, users, cutoff)
			if err != nil {
				return Tally{}, err
			}
			tally.PlayCount += len(recent)
			for _, userID := range recent {
				unique[userID] = struct{}{}
			}
		}
		tally.UniqueUserCount = len(unique)
		return tally, nil
	})
}

// tallies scans items on a bounded pool. Each worker writes only its own
// slot, so the merge does not depend on completion order.
func (e *Extractor) tallies(ctx context.Context, items []Item, count func(context.Context, Item) (Tally, error)) (map[string]Tally, error) {
	workers := e.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]Tally, len(items))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(workers)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			tally, err := count(ctx, item)
			if err != nil {
				return err
			}
			results[i] = tally
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]Tally, len(items))
	for _, tally := range results {
		if _, seen := out[tally.ID]; seen {
			continue
		}
		out[tally.ID] = tally
	}
	return out, nil
}
