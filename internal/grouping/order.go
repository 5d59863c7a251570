package grouping

import (
	"fmt"
	"sort"
	"strings"
)

// OrderStrategy decides the order in which seeds and candidates are visited. It never
// changes which pairs qualify, only which group a contested photo ends up in.
type OrderStrategy interface {
	Name() string
	Order(s Scores, threshold float64) []int
}

// Strategy names accepted by StrategyByName.
const (
	OrderIndex  = "index"
	OrderDegree = "degree"
)

// IndexOrder visits entries in scope order.
type IndexOrder struct{}

func (IndexOrder) Name() string { return OrderIndex }

func (IndexOrder) Order(s Scores, _ float64) []int {
	order := make([]int, s.Len())
	for i := range order {
		order[i] = i
	}
	return order
}

// DegreeOrder visits the entries with the most above-threshold neighbours first.
// Ties keep scope order.
type DegreeOrder struct{}

func (DegreeOrder) Name() string { return OrderDegree }

func (DegreeOrder) Order(s Scores, threshold float64) []int {
	n := s.Len()
	degree := make([]int, n)
	for i := range n {
		for j := i + 1; j < n; j++ {
			if s.Score(i, j) >= threshold {
				degree[i]++
				degree[j]++
			}
		}
	}

	order := IndexOrder{}.Order(s, threshold)
	sort.SliceStable(order, func(a, b int) bool {
		return degree[order[a]] > degree[order[b]]
	})
	return order
}

// StrategyByName resolves an order name. An empty name selects IndexOrder.
func StrategyByName(name string) (OrderStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", OrderIndex:
		return IndexOrder{}, nil
	case OrderDegree:
		return DegreeOrder{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrder, name)
	}
}
