package topten

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// fakeLibrary is an in-memory catalog, user directory, activity store and
// collection store.
type fakeLibrary struct {
	mu       sync.Mutex
	items    []Item
	users    []string
	played   map[string]time.Time // userID + "/" + itemID
	members  map[string][]string
	nextID   int
	failList map[Kind]error
	failGet  error
	failAdd  []error
	failRem  []error

	listCalls   int
	createCalls []string
	addCalls    [][]string
	removeCalls [][]string
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		played:   map[string]time.Time{},
		members:  map[string][]string{},
		failList: map[Kind]error{},
	}
}

func (f *fakeLibrary) add(items ...Item) *fakeLibrary {
	f.items = append(f.items, items...)
	return f
}

func (f *fakeLibrary) play(userID, itemID string, at time.Time) {
	if !slices.Contains(f.users, userID) {
		f.users = append(f.users, userID)
	}
	f.played[userID+"/"+itemID] = at
}

func (f *fakeLibrary) ListItems(ctx context.Context, q ItemQuery) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	for _, kind := range q.Kinds {
		if err := f.failList[kind]; err != nil {
			return nil, err
		}
	}
	var out []Item
	for _, item := range f.items {
		if len(q.Kinds) > 0 && !slices.Contains(q.Kinds, item.Kind) {
			continue
		}
		if q.Name != "" && item.Name != q.Name {
			continue
		}
		if q.AncestorID != "" && !f.descends(item, q.AncestorID, q.Recursive) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeLibrary) descends(item Item, ancestorID string, recursive bool) bool {
	for parent := item.ParentID; parent != ""; {
		if parent == ancestorID {
			return true
		}
		if !recursive {
			return false
		}
		next := ""
		for _, candidate := range f.items {
			if candidate.ID == parent {
				next = candidate.ParentID
				break
			}
		}
		parent = next
	}
	return false
}

func (f *fakeLibrary) LinkedChildren(ctx context.Context, collectionID string) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Item
	for _, id := range f.members[collectionID] {
		out = append(out, Item{ID: id})
	}
	return out, nil
}

func (f *fakeLibrary) ListUsers(ctx context.Context) ([]string, error) {
	return slices.Clone(f.users), nil
}

func (f *fakeLibrary) GetActivity(ctx context.Context, userID, itemID string) (Activity, bool, error) {
	if f.failGet != nil {
		return Activity{}, false, f.failGet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.played[userID+"/"+itemID]
	if !ok {
		return Activity{}, false, nil
	}
	return Activity{UserID: userID, ItemID: itemID, LastPlayed: at}, true, nil
}

func (f *fakeLibrary) CreateCollection(ctx context.Context, name string, locked bool) (Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	item := Item{ID: fmt.Sprintf("collection-%d", f.nextID), Name: name, Kind: KindCollection}
	f.items = append(f.items, item)
	f.createCalls = append(f.createCalls, name)
	return item, nil
}

func (f *fakeLibrary) AddToCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls = append(f.addCalls, slices.Clone(itemIDs))
	if len(f.failAdd) > 0 {
		err := f.failAdd[0]
		f.failAdd = f.failAdd[1:]
		if err != nil {
			return err
		}
	}
	for _, id := range itemIDs {
		if !slices.Contains(f.members[collectionID], id) {
			f.members[collectionID] = append(f.members[collectionID], id)
		}
	}
	return nil
}

func (f *fakeLibrary) RemoveFromCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, slices.Clone(itemIDs))
	if len(f.failRem) > 0 {
		err := f.failRem[0]
		f.failRem = f.failRem[1:]
		if err != nil {
			return err
		}
	}
	f.members[collectionID] = slices.DeleteFunc(f.members[collectionID], func(id string) bool {
		return slices.Contains(itemIDs, id)
	})
	return nil
}

func movie(id string) Item  { return Item{ID: id, Name: "Movie " + id, Kind: KindMovie} }
func series(id string) Item { return Item{ID: id, Name: "Series " + id, Kind: KindSeries} }

func episode(id, parent string) Item {
	return Item{ID: id, Name: "Episode " + id, Kind: KindEpisode, ParentID: parent}
}
