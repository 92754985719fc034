package temporal

import (
	"slices"

	"github.com/cpage-pivotal/ipzs/internal/domain"
)

// Rank orders results by effective date, most recent first. Results without
// a usable date go after every dated one and are ordered among themselves by
// generation. Everything else keeps its upstream order.
//
// This is a recency heuristic. Explicit supersedes links are not followed.
func Rank(results []domain.SearchResult) []domain.SearchResult {
	type keyed struct {
		r     domain.SearchResult
		epoch int64
		dated bool
	}
	ks := make([]keyed, len(results))
	for i, r := range results {
		t, err := ParseDate(r.Chunk.EffectiveDate)
		ks[i] = keyed{r: r, dated: err == nil}
		if err == nil {
			ks[i].epoch = EpochDay(t)
		}
	}
	slices.SortStableFunc(ks, func(a, b keyed) int {
		switch {
		case a.dated && b.dated:
			return cmpDesc(a.epoch, b.epoch)
		case a.dated:
			return -1
		case b.dated:
			return 1
		}
		return cmpDesc(int64(a.r.Chunk.Generation), int64(b.r.Chunk.Generation))
	})
	out := make([]domain.SearchResult, len(ks))
	for i, k := range ks {
		out[i] = k.r
	}
	return out
}

func cmpDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
