package topten

import (
	"context"
	"time"
)

// Strategy produces the ranking for one item kind.
type Strategy interface {
	Kind() Kind
	Top(ctx context.Context, users []string, cutoff time.Time, n int) (RankedSet, error)
}

// MovieStrategy ranks movies by distinct recent viewers.
type MovieStrategy struct {
	Extractor *Extractor
}

func (s MovieStrategy) Kind() Kind { return KindMovie }

func (s MovieStrategy) Top(ctx context.Context, users []string, cutoff time.Time, n int) (RankedSet, error) {
	movies, err := s.Extractor.Catalog.ListItems(ctx, ItemQuery{Kinds: []Kind{KindMovie}, Recursive: true})
	if err != nil {
		return RankedSet{Kind: KindMovie}, &ExtractionError{Kind: KindMovie, Err: err}
	}
	tallies, err := s.Extractor.MovieTallies(ctx, movies, users, cutoff)
	if err != nil {
		return RankedSet{Kind: KindMovie}, &ExtractionError{Kind: KindMovie, Err: err}
	}
	return newRankedSet(KindMovie, Rank(movies, tallies, MovieComparator, n), tallies), nil
}

// SeriesStrategy ranks series by recent episode plays summed over the series.
type SeriesStrategy struct {
	Extractor *Extractor
}

func (s SeriesStrategy) Kind() Kind { return KindSeries }

func (s SeriesStrategy) Top(ctx context.Context, users []string, cutoff time.Time, n int) (RankedSet, error) {
	series, err := s.Extractor.Catalog.ListItems(ctx, ItemQuery{Kinds: []Kind{KindSeries}, Recursive: true})
	if err != nil {
		return RankedSet{Kind: KindSeries}, &ExtractionError{Kind: KindSeries, Err: err}
	}
	tallies, err := s.Extractor.SeriesTallies(ctx, series, users, cutoff)
	if err != nil {
		return RankedSet{Kind: KindSeries}, &ExtractionError{Kind: KindSeries, Err: err}
	}
	return newRankedSet(KindSeries, Rank(series, tallies, SeriesComparator, n), tallies), nil
}

// newRankedSet keeps only the tallies of ranked items.
func newRankedSet(kind Kind, items []Item, tallies map[string]Tally) RankedSet {
	kept := make(map[string]Tally, len(items))
	for _, item := range items {
		kept[item.ID] = tallies[item.ID]
	}
	return RankedSet{Kind: kind, Items: items, Tallies: kept}
}
