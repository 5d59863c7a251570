package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Format identifies which stored representation a vector was recovered from.
type Format int

// Formats in order of precedence. Every encoder generation that ever wrote to the
// embeddings table produced one of these.
const (
	FormatUnknown    Format = iota
	FormatStructured        // already a numeric list ([]float32, []float64, []any)
	FormatJSONArray         // "[0.1,0.2,0.3]"
	FormatJSONObject        // {"embedding":[0.1,0.2,0.3]}
	FormatQuoted            // "\"[0.1,0.2,0.3]\"" or '[0.1,0.2,0.3]'
	FormatDelimited         // 0.1, 0.2, 0.3  /  [0.1 0.2 0.3]]
)

func (f Format) String() string {
	switch f {
	case FormatStructured:
		return "structured"
	case FormatJSONArray:
		return "json_array"
	case FormatJSONObject:
		return "json_object"
	case FormatQuoted:
		return "quoted"
	case FormatDelimited:
		return "delimited"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyValue is returned for nil or blank stored values.
	ErrEmptyValue = errors.New("empty embedding value")
	// ErrUnparseable is returned when no numeric content can be recovered.
	ErrUnparseable = errors.New("no numeric content in embedding value")
)

// maxUnquoteDepth bounds recursion through nested string encodings.
const maxUnquoteDepth = 3

// ParseResult is either Ok (a vector plus the format it came from) or a failure.
type ParseResult struct {
	vec    []float32
	format Format
	err    error
}

func ok(vec []float32, f Format) ParseResult { return ParseResult{vec: vec, format: f} }

func failure(err error) ParseResult { return ParseResult{err: err} }

// Ok reports whether a vector was recovered.
func (r ParseResult) Ok() bool { return r.err == nil }

// Vector returns the recovered vector, or nil on failure.
func (r ParseResult) Vector() []float32 { return r.vec }

// Format returns the representation the vector was recovered from.
func (r ParseResult) Format() Format { return r.format }

// Err returns the failure reason, or nil.
func (r ParseResult) Err() error { return r.err }

// OrEmpty returns the vector, or an empty vector when parsing failed.
// An empty vector scores 0 against everything.
func (r ParseResult) OrEmpty() []float32 {
	if r.err != nil {
		return []float32{}
	}
	return r.vec
}

// Parse recovers a vector from any stored representation.
func Parse(raw any) ParseResult {
	switch v := raw.(type) {
	case nil:
		return failure(ErrEmptyValue)
	case []float32:
		if len(v) == 0 {
			return failure(ErrEmptyValue)
		}
		out := make([]float32, len(v))
		copy(out, v)
		return ok(out, FormatStructured)
	case []float64:
		if len(v) == 0 {
			return failure(ErrEmptyValue)
		}
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(x)
		}
		return ok(out, FormatStructured)
	case []any:
		nums, found := numbersFromList(v)
		if !found {
			return failure(ErrUnparseable)
		}
		return ok(nums, FormatStructured)
	case []byte:
		return ParseString(string(v))
	case string:
		return ParseString(v)
	case fmt.Stringer:
		return ParseString(v.String())
	default:
		return ParseString(fmt.Sprint(v))
	}
}

// ParseString recovers a vector from a serialized string.
func ParseString(s string) ParseResult {
	return parseString(s, 0)
}

func parseString(s string, depth int) ParseResult {
	s = strings.TrimSpace(s)
	if s == "" {
		return failure(ErrEmptyValue)
	}

	if res, done := parseJSON(s, depth); done {
		return res
	}

	if inner, quoted := stripQuotes(s); quoted {
		if vec, found := jsonArray(inner); found {
			return ok(vec, FormatQuoted)
		}
		s = inner
	}

	return parseDelimited(s)
}

// parseJSON handles the array, object and JSON-string encodings.
// done is false when s is not valid JSON or holds nothing usable.
func parseJSON(s string, depth int) (ParseResult, bool) {
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return ParseResult{}, false
	}

	switch v := decoded.(type) {
	case []any:
		if nums, found := numbersFromList(v); found {
			return ok(nums, FormatJSONArray), true
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if list, isList := v[k].([]any); isList {
				if nums, found := numbersFromList(list); found {
					return ok(nums, FormatJSONObject), true
				}
			}
		}
	case string:
		if depth >= maxUnquoteDepth {
			return ParseResult{}, false
		}
		res := parseString(v, depth+1)
		if res.Ok() {
			res.format = FormatQuoted
			return res, true
		}
	}
	return ParseResult{}, false
}

// parseDelimited handles bare comma or whitespace separated numbers with stray brackets.
func parseDelimited(s string) ParseResult {
	s = width.Fold.String(s)
	s = strings.NewReplacer("[", " ", "]", " ", `"`, " ", "'", " ").Replace(s)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ",")

	var parts []string
	if strings.Contains(s, ",") {
		parts = strings.Split(s, ",")
	} else {
		parts = strings.Fields(s)
	}

	nums := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		nums = append(nums, float32(f))
	}
	if len(nums) == 0 {
		return failure(ErrUnparseable)
	}
	return ok(nums, FormatDelimited)
}

func stripQuotes(s string) (string, bool) {
	if len(s) < 2 {
		return s, false
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return strings.TrimSpace(s[1 : len(s)-1]), true
	}
	return s, false
}

func jsonArray(s string) ([]float32, bool) {
	var list []any
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, false
	}
	return numbersFromList(list)
}

// numbersFromList converts list element by element. Null and non-numeric elements
// become 0 so later components keep their position. found reports whether at least
// one element was numeric.
func numbersFromList(list []any) (out []float32, found bool) {
	out = make([]float32, len(list))
	for i, item := range list {
		f, isNum := number(item)
		if !isNum {
			continue
		}
		out[i] = f
		found = true
	}
	return out, found
}

func number(item any) (float32, bool) {
	switch n := item.(type) {
	case float64:
		return float32(n), true
	case float32:
		return n, true
	case int:
		return float32(n), true
	case int64:
		return float32(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return float32(f), true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return float32(f), true
		}
	}
	return 0, false
}
