package handlers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// paramError is a malformed query parameter.
type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.name, e.value)
}

func int64Param(q url.Values, name string, def int64) (int64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &paramError{name: name, value: raw}
	}
	return v, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v, err := int64Param(q, name, int64(def))
	return int(v), err
}

// floatParam parses a float. NaN and infinities parse and are left to request validation.
func floatParam(q url.Values, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &paramError{name: name, value: raw}
	}
	return v, nil
}

func stringParam(q url.Values, name, def string) string {
	if v := strings.TrimSpace(q.Get(name)); v != "" {
		return v
	}
	return def
}
