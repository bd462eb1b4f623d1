package topten

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

// Plan describes the membership edit computed for one collection.
type Plan struct {
	CollectionID string   `json:"collectionId"`
	Created      bool     `json:"created"`
	ToAdd        []string `json:"toAdd"`
	ToRemove     []string `json:"toRemove"`
}

func (p Plan) Empty() bool { return len(p.ToAdd) == 0 && len(p.ToRemove) == 0 }

// Reconciler makes a named collection's membership equal to a desired set.
type Reconciler struct {
	Catalog Catalog
	Store   CollectionStore
	Logger  zerolog.Logger

	// Attempts and RetryDelay apply to add and remove calls, which are
	// idempotent set edits.
	Attempts   uint
	RetryDelay time.Duration
}

func NewReconciler(catalog Catalog, store CollectionStore, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		Catalog:    catalog,
		Store:      store,
		Logger:     logger,
		Attempts:   3,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Desired concatenates ranked sets in order and drops repeated ids, keeping
// the first occurrence.
func Desired(sets ...RankedSet) []Item {
	seen := make(map[string]struct{})
	var out []Item
	for _, set := range sets {
		for _, item := range set.Items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// Diff returns desired minus current and current minus desired, each in the
// order of its source slice.
func Diff(current, desired []string) (toAdd, toRemove []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	desiredSet := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	for _, id := range desired {
		if _, ok := currentSet[id]; !ok {
			toAdd = append(toAdd, id)
			currentSet[id] = struct{}{}
		}
	}
	for _, id := range current {
		if _, ok := desiredSet[id]; !ok {
			toRemove = append(toRemove, id)
			desiredSet[id] = struct{}{}
		}
	}
	return toAdd, toRemove
}

func (r *Reconciler) Reconcile(ctx context.Context, name string, desired []Item) (Plan, error) {
	logger := r.Logger.With().Str("collection", name).Logger()
	logger.Info().
		Str("event", "collection.update").
		Int("items", len(desired)).
		Msg("updating collection")

	collection, created, err := r.findOrCreate(ctx, name)
	if err != nil {
		return Plan{}, r.fail(logger, name, "find or create", err)
	}

	members, err := r.Catalog.LinkedChildren(ctx, collection.ID)
	if err != nil {
		return Plan{}, r.fail(logger, name, "list members", err)
	}

	plan := Plan{CollectionID: collection.ID, Created: created}
	plan.ToAdd, plan.ToRemove = Diff(itemIDs(members), itemIDs(desired))

	if len(plan.ToAdd) > 0 {
		logger.Info().Str("event", "collection.add").Int("count", len(plan.ToAdd)).Msg("adding items to collection")
		if err := r.retry(ctx, func() error {
			return r.Store.AddToCollection(ctx, collection.ID, plan.ToAdd)
		}); err != nil {
			return plan, r.fail(logger, name, "add members", err)
		}
	}
	if len(plan.ToRemove) > 0 {
		logger.Info().Str("event", "collection.remove").Int("count", len(plan.ToRemove)).Msg("removing items from collection")
		if err := r.retry(ctx, func() error {
			return r.Store.RemoveFromCollection(ctx, collection.ID, plan.ToRemove)
		}); err != nil {
			return plan, r.fail(logger, name, "remove members", err)
		}
	}
	if plan.Empty() {
		logger.Debug().Str("event", "collection.unchanged").Msg("collection already up to date")
	}
	return plan, nil
}

func (r *Reconciler) findOrCreate(ctx context.Context, name string) (Item, bool, error) {
	found, err := r.Catalog.ListItems(ctx, ItemQuery{Kinds: []Kind{KindCollection}, Name: name})
	if err != nil {
		return Item{}, false, err
	}
	if len(found) > 0 {
		return found[0], false, nil
	}

	r.Logger.Info().Str("event", "collection.create").Str("collection", name).Msg("creating collection")
	collection, err := r.Store.CreateCollection(ctx, name, true)
	if err != nil {
		return Item{}, false, err
	}
	return collection, true, nil
}

func (r *Reconciler) retry(ctx context.Context, fn func() error) error {
	attempts := r.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(r.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.Logger.Warn().Err(err).Uint("attempt", n+1).Str("event", "collection.retry").Msg("collection store call failed, retrying")
		}),
	)
}

func (r *Reconciler) fail(logger zerolog.Logger, name, op string, err error) error {
	logger.Error().Err(err).Str("event", "collection.failed").Str("op", op).Msg("error updating collection")
	return &ReconcileError{Collection: name, Op: op, Err: err}
}

func itemIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
