package topten

import "slices"

// SortKey extracts one ranking metric from a tally.
type SortKey func(Tally) int

// Comparator orders tallies by Primary descending, then Secondary descending.
type Comparator struct {
	Primary   SortKey
	Secondary SortKey
}

func UniqueUsers(t Tally) int { return t.UniqueUserCount }
func PlayCount(t Tally) int   { return t.PlayCount }

var (
	MovieComparator  = Comparator{Primary: UniqueUsers, Secondary: PlayCount}
	SeriesComparator = Comparator{Primary: PlayCount, Secondary: UniqueUsers}
)

func (c Comparator) compare(a, b Tally) int {
	if d := c.Primary(b) - c.Primary(a); d != 0 {
		return d
	}
	return c.Secondary(b) - c.Secondary(a)
}

// Rank returns at most n items ordered by cmp. Items without a tally, with a
// zero primary key, or with an id already seen are dropped. Remaining ties
// keep the enumeration order of items.
func Rank(items []Item, tallies map[string]Tally, cmp Comparator, n int) []Item {
	if n <= 0 || len(items) == 0 {
		return []Item{}
	}

	type entry struct {
		item  Item
		tally Tally
	}
	seen := make(map[string]struct{}, len(items))
	entries := make([]entry, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		tally, ok := tallies[item.ID]
		if !ok || cmp.Primary(tally) <= 0 {
			continue
		}
		entries = append(entries, entry{item: item, tally: tally})
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		return cmp.compare(a.tally, b.tally)
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]Item, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}
