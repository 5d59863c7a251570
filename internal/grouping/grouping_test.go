package grouping

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"testing"

	"github.com/mamage/photo-similarity/internal/similarity"
)

// fixedScores is a hand-written symmetric matrix.
type fixedScores struct {
	ids    []int64
	scores map[[2]int]float64
}

func (f fixedScores) Len() int            { return len(f.ids) }
func (f fixedScores) PhotoID(i int) int64 { return f.ids[i] }
func (f fixedScores) Score(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	return f.scores[[2]int{i, j}]
}

// abc is the chain A~B (0.90), B~C (0.85), A~C (0.30).
func abc() fixedScores {
	return fixedScores{
		ids: []int64{1, 2, 3},
		scores: map[[2]int]float64{
			{0, 1}: 0.90,
			{1, 2}: 0.85,
			{0, 2}: 0.30,
		},
	}
}

func TestGroup_ChainScenario(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want [][]int64
	}{
		{
			name: "connected is transitive",
			opts: Options{Threshold: 0.8, MinSize: 2, Mode: ModeConnected},
			want: [][]int64{{1, 2, 3}},
		},
		{
			name: "clique requires every pair",
			opts: Options{Threshold: 0.8, MinSize: 2, Mode: ModeClique},
			want: [][]int64{{1, 2}},
		},
		{
			name: "minInternal drops the chain",
			opts: Options{Threshold: 0.8, MinSize: 2, Mode: ModeConnected, MinInternal: 0.5},
			want: [][]int64{},
		},
		{
			name: "minInternal keeps the clique",
			opts: Options{Threshold: 0.8, MinSize: 2, Mode: ModeClique, MinInternal: 0.85},
			want: [][]int64{{1, 2}},
		},
		{
			name: "threshold above one",
			opts: Options{Threshold: 1.01, MinSize: 2},
			want: [][]int64{},
		},
		{
			name: "minSize zero clamps to singletons",
			opts: Options{Threshold: 1.01, MinSize: 0},
			want: [][]int64{{1}, {2}, {3}},
		},
		{
			name: "minSize above group size",
			opts: Options{Threshold: 0.8, MinSize: 4, Mode: ModeConnected},
			want: [][]int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Group(abc(), tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if !slices.Equal(sorted(got[i]), sorted(tt.want[i])) {
					t.Errorf("group %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGroup_ConnectedPopOrder(t *testing.T) {
	// 0 links to 1 and 2; the stack pops the highest pushed index first.
	s := fixedScores{
		ids:    []int64{10, 11, 12},
		scores: map[[2]int]float64{{0, 1}: 0.9, {0, 2}: 0.9},
	}
	got, err := Group(s, Options{Threshold: 0.8, MinSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{10, 12, 11}
	if len(got) != 1 || !slices.Equal(got[0], want) {
		t.Errorf("got %v, want [%v]", got, want)
	}
}

func TestGroup_EmptyScope(t *testing.T) {
	for _, mode := range []Mode{ModeConnected, ModeClique} {
		got, err := Group(similarity.Build(nil), Options{Threshold: 0.8, MinSize: 2, Mode: mode})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", mode, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("%s: expected empty non-nil groups, got %#v", mode, got)
		}
	}
}

func TestGroup_UnknownMode(t *testing.T) {
	_, err := Group(abc(), Options{Threshold: 0.8, Mode: "fuzzy"})
	if !errors.Is(err, ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
}

func randomItems(r *rand.Rand, n, dim int) []similarity.Item {
	items := make([]similarity.Item, n)
	// A few tight clusters plus noise so both modes have work to do.
	centers := make([][]float32, 4)
	for c := range centers {
		centers[c] = make([]float32, dim)
		for d := range dim {
			centers[c][d] = float32(r.NormFloat64())
		}
	}
	for i := range items {
		c := centers[r.IntN(len(centers))]
		v := make([]float32, dim)
		for d := range dim {
			v[d] = c[d] + float32(r.NormFloat64()*0.35)
		}
		items[i] = similarity.Item{PhotoID: int64(100 + i), Vector: v}
	}
	return items
}

func TestGroup_CliqueMutualThreshold(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	m := similarity.Build(randomItems(r, 60, 16))

	for _, order := range []OrderStrategy{IndexOrder{}, DegreeOrder{}} {
		groups, err := GroupIndexes(m, Options{Threshold: 0.8, MinSize: 2, Mode: ModeClique, Order: order})
		if err != nil {
			t.Fatal(err)
		}
		seen := map[int]bool{}
		for _, g := range groups {
			if low := MinPairScore(m, g); low < 0.8 {
				t.Errorf("%s: group %v has internal pair %.3f below threshold", order.Name(), g, low)
			}
			for _, i := range g {
				if seen[i] {
					t.Errorf("%s: entry %d in more than one group", order.Name(), i)
				}
				seen[i] = true
			}
		}
	}
}

func TestGroup_MinInternalInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	m := similarity.Build(randomItems(r, 50, 8))

	for _, mode := range []Mode{ModeConnected, ModeClique} {
		groups, err := GroupIndexes(m, Options{Threshold: 0.7, MinSize: 2, Mode: mode, MinInternal: 0.75})
		if err != nil {
			t.Fatal(err)
		}
		for _, g := range groups {
			if low := MinPairScore(m, g); low < 0.75 {
				t.Errorf("%s: group %v has internal pair %.3f below minInternal", mode, g, low)
			}
		}
	}
}

func TestGroup_ConnectedRelabelInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	items := randomItems(r, 40, 8)

	base, err := Group(similarity.Build(items), Options{Threshold: 0.8, MinSize: 2})
	if err != nil {
		t.Fatal(err)
	}

	shuffled := slices.Clone(items)
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	perm, err := Group(similarity.Build(shuffled), Options{Threshold: 0.8, MinSize: 2})
	if err != nil {
		t.Fatal(err)
	}

	if a, b := canonical(base), canonical(perm); !slices.Equal(a, b) {
		t.Errorf("partition changed under relabeling:\n%v\n%v", a, b)
	}
}

func TestGroup_ConnectedPartitionsScope(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	m := similarity.Build(randomItems(r, 30, 8))

	groups, err := GroupIndexes(m, Options{Threshold: 0.8, MinSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, g := range groups {
		count += len(g)
	}
	if count != m.Len() {
		t.Errorf("singleton-inclusive partition covers %d of %d entries", count, m.Len())
	}
}

func TestStrategyByName(t *testing.T) {
	for _, name := range []string{"", OrderIndex, OrderDegree} {
		if _, err := StrategyByName(name); err != nil {
			t.Errorf("StrategyByName(%q): %v", name, err)
		}
	}
	if _, err := StrategyByName("random"); !errors.Is(err, ErrUnknownOrder) {
		t.Errorf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestDegreeOrder(t *testing.T) {
	// Entry 2 has two neighbours, the others one each.
	s := fixedScores{
		ids:    []int64{1, 2, 3},
		scores: map[[2]int]float64{{0, 2}: 0.9, {1, 2}: 0.9},
	}
	got := DegreeOrder{}.Order(s, 0.8)
	if !slices.Equal(got, []int{2, 0, 1}) {
		t.Errorf("DegreeOrder = %v, want [2 0 1]", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"clique", ModeClique, false},
		{"connected", ModeConnected, false},
		{"Clique", ModeClique, false},
		{"CONNECTED", ModeConnected, false},
		{" Connected ", ModeConnected, false},
		{"", ModeConnected, false},
		{"fuzzy", "", true},
		{"cliques", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			m, err := ParseMode(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownMode) {
					t.Errorf("ParseMode(%q) error = %v, want ErrUnknownMode", tc.in, err)
				}
				return
			}
			if err != nil || m != tc.want {
				t.Errorf("ParseMode(%q) = %q, %v, want %q", tc.in, m, err, tc.want)
			}
		})
	}
}

func TestStrategyByName_IgnoresCase(t *testing.T) {
	s, err := StrategyByName("Degree")
	if err != nil {
		t.Fatalf("StrategyByName(Degree): %v", err)
	}
	if s.Name() != OrderDegree {
		t.Errorf("Name() = %q, want %q", s.Name(), OrderDegree)
	}
}

func sorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

func canonical(groups [][]int64) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = fmt.Sprint(sorted(g))
	}
	sort.Strings(out)
	return out
}
