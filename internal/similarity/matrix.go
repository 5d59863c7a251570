// Package similarity builds the pairwise cosine-similarity matrix over one scope of
// embeddings and answers pair and nearest-neighbour queries against it.
package similarity

import (
	"sort"

	"github.com/mamage/photo-similarity/internal/vector"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Item is one embedding in scope. The same photo may appear more than once when it has
// several stored rows.
type Item struct {
	PhotoID int64
	Vector  []float32
}

// Pair is an unordered pair of scope entries with their score.
type Pair struct {
	A     int64   `json:"a"`
	B     int64   `json:"b"`
	Score float64 `json:"score"`
	I     int     `json:"-"`
	J     int     `json:"-"`
}

// Matrix holds the symmetric score matrix for an ordered scope. It is immutable once built
// and safe for concurrent readers.
type Matrix struct {
	items  []Item
	scores *mat.SymDense // nil for an empty scope
}

// Build re-normalizes every vector and computes all pairwise scores.
// Vectors of different lengths are compared over their common prefix.
func Build(items []Item) *Matrix {
	n := len(items)
	m := &Matrix{items: make([]Item, n)}
	if n == 0 {
		return m
	}

	vecs := make([][]float64, n)
	norms := make([]float64, n)
	for i, it := range items {
		unit := vector.L2Normalize(it.Vector)
		m.items[i] = Item{PhotoID: it.PhotoID, Vector: unit}

		v := make([]float64, len(unit))
		for k, x := range unit {
			v[k] = float64(x)
		}
		vecs[i] = v
		norms[i] = floats.Norm(v, 2)
	}

	m.scores = mat.NewSymDense(n, nil)
	for i := range n {
		for j := i + 1; j < n; j++ {
			m.scores.SetSym(i, j, cosine(vecs[i], vecs[j], norms[i], norms[j]))
		}
	}
	return m
}

func cosine(a, b []float64, na, nb float64) float64 {
	d := min(len(a), len(b))
	if d == 0 {
		return 0
	}
	s := floats.Dot(a[:d], b[:d]) / (na*nb + vector.Epsilon)
	if s != s { // NaN
		return 0
	}
	return s
}

// Len returns the number of entries in scope.
func (m *Matrix) Len() int { return len(m.items) }

// PhotoID returns the photo id of entry i.
func (m *Matrix) PhotoID(i int) int64 { return m.items[i].PhotoID }

// Score returns sim(i, j). The diagonal is reported as 0.
func (m *Matrix) Score(i, j int) float64 {
	if i == j || m.scores == nil {
		return 0
	}
	return m.scores.At(i, j)
}

// Pairs returns every i<j pair with score >= minScore, highest first. Equal scores keep
// scope order.
func (m *Matrix) Pairs(minScore float64) []Pair {
	pairs := []Pair{}
	n := m.Len()
	for i := range n {
		for j := i + 1; j < n; j++ {
			s := m.Score(i, j)
			if s >= minScore {
				pairs = append(pairs, Pair{A: m.items[i].PhotoID, B: m.items[j].PhotoID, Score: s, I: i, J: j})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return pairs[a].Score > pairs[b].Score
	})
	return pairs
}
