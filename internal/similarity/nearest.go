package similarity

import (
	"cmp"
	"slices"

	"github.com/mamage/photo-similarity/internal/vector"
)

// Neighbor is one nearest-neighbour result.
type Neighbor struct {
	PhotoID int64   `json:"photoId"`
	Score   float64 `json:"score"`
}

type scored struct {
	idx   int
	score float64
}

// Nearest scores every candidate against query and returns the k best, best first.
// Rows of the exclude photo, degenerate (empty or zero) vectors and vectors of a
// different dimension than query are skipped. Equal scores keep candidate order.
func Nearest(query []float32, candidates []Item, exclude int64, k int) []Neighbor {
	if k <= 0 || vector.IsZero(query) {
		return []Neighbor{}
	}

	hits := make([]scored, 0, len(candidates))
	for i, it := range candidates {
		if it.PhotoID == exclude || len(it.Vector) != len(query) || vector.IsZero(it.Vector) {
			continue
		}
		hits = append(hits, scored{idx: i, score: vector.Cosine(query, it.Vector)})
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]Neighbor, len(hits))
	for i, h := range hits {
		out[i] = Neighbor{PhotoID: candidates[h.idx].PhotoID, Score: h.score}
	}
	return out
}
