// Package grouping partitions a similarity matrix into groups of visually similar photos.
//
// Two modes are supported. Connected mode emits the connected components of the graph whose
// edges are pairs scoring at least the threshold; similarity is treated as transitive, so a
// chain A~B~C lands in one group even when A and C are dissimilar. Clique mode builds groups
// greedily so that every pair inside a group meets the threshold.
package grouping

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the grouping algorithm.
type Mode string

const (
	ModeConnected Mode = "connected"
	ModeClique    Mode = "clique"
)

var (
	// ErrUnknownMode is returned for a mode other than connected or clique.
	ErrUnknownMode = errors.New("unknown grouping mode")
	// ErrUnknownOrder is returned for an unregistered order strategy name.
	ErrUnknownOrder = errors.New("unknown order strategy")
)

// ParseMode validates a mode name, ignoring case and surrounding space.
// An empty name selects connected mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeConnected, nil
	case ModeConnected, ModeClique:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Scores is the read side of a similarity matrix.
type Scores interface {
	Len() int
	Score(i, j int) float64
	PhotoID(i int) int64
}

// Options configures one grouping run.
type Options struct {
	Threshold   float64
	MinSize     int     // groups smaller than this are dropped; values below 1 mean 1
	Mode        Mode    // defaults to connected
	MinInternal float64 // when > 0, drop groups with any internal pair below it
	Order       OrderStrategy
}

// Group partitions s and returns the photo ids of each emitted group.
func Group(s Scores, opts Options) ([][]int64, error) {
	idx, err := GroupIndexes(s, opts)
	if err != nil {
		return nil, err
	}
	groups := make([][]int64, len(idx))
	for g, members := range idx {
		ids := make([]int64, len(members))
		for k, i := range members {
			ids[k] = s.PhotoID(i)
		}
		groups[g] = ids
	}
	return groups, nil
}

// GroupIndexes is Group returning scope indexes instead of photo ids.
func GroupIndexes(s Scores, opts Options) ([][]int, error) {
	minSize := max(opts.MinSize, 1)
	order := opts.Order
	if order == nil {
		order = IndexOrder{}
	}

	var groups [][]int
	switch opts.Mode {
	case ModeConnected, "":
		groups = connected(s, opts.Threshold, minSize, order)
	case ModeClique:
		groups = clique(s, opts.Threshold, minSize, order)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}

	if opts.MinInternal > 0 {
		groups = filterMinInternal(s, groups, opts.MinInternal)
	}
	return groups, nil
}

// connected walks each component with an explicit stack. Members appear in the order
// they are popped; neighbours are pushed in ascending index.
func connected(s Scores, threshold float64, minSize int, order OrderStrategy) [][]int {
	n := s.Len()
	visited := make([]bool, n)
	groups := [][]int{}

	for _, seed := range order.Order(s, threshold) {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		stack := []int{seed}
		var comp []int

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, cur)

			for j := range n {
				if !visited[j] && j != cur && s.Score(cur, j) >= threshold {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}

		if len(comp) >= minSize {
			groups = append(groups, comp)
		}
	}
	return groups
}

// clique grows a group from each unassigned seed, admitting a candidate only when it
// meets the threshold with every member admitted so far. The seed is consumed even when
// its group ends up too small to emit.
func clique(s Scores, threshold float64, minSize int, order OrderStrategy) [][]int {
	assigned := make([]bool, s.Len())
	seq := order.Order(s, threshold)
	groups := [][]int{}

	for _, seed := range seq {
		if assigned[seed] {
			continue
		}
		group := []int{seed}

		for _, j := range seq {
			if j == seed || assigned[j] || s.Score(seed, j) < threshold {
				continue
			}
			if fitsAll(s, group, j, threshold) {
				group = append(group, j)
			}
		}

		for _, i := range group {
			assigned[i] = true
		}
		if len(group) >= minSize {
			groups = append(groups, group)
		}
	}
	return groups
}

func fitsAll(s Scores, group []int, j int, threshold float64) bool {
	for _, m := range group {
		if s.Score(m, j) < threshold {
			return false
		}
	}
	return true
}

func filterMinInternal(s Scores, groups [][]int, minInternal float64) [][]int {
	kept := groups[:0]
	for _, g := range groups {
		if MinPairScore(s, g) >= minInternal {
			kept = append(kept, g)
		}
	}
	return kept
}

// MinPairScore returns the lowest score between any two members, or 1 for groups with
// fewer than two members.
func MinPairScore(s Scores, group []int) float64 {
	lowest := 1.0
	for a := range group {
		for b := a + 1; b < len(group); b++ {
			lowest = min(lowest, s.Score(group[a], group[b]))
		}
	}
	return lowest
}
