package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Tree is the loosely-typed task input and result payload. Agents read the
// keys they know through the typed accessors below; unknown keys are ignored.
type Tree map[string]any

// RequiredString returns the non-empty string at key or an ErrInvalidInput.
func (t Tree) RequiredString(key string) (string, error) {
	v, ok := t[key]
	if !ok {
		return "", fmt.Errorf("missing %q: %w", key, ErrInvalidInput)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("field %q must be a non-empty string: %w", key, ErrInvalidInput)
	}
	return s, nil
}

// String returns the string at key, or def when absent or not a string.
func (t Tree) String(key, def string) string {
	if s, ok := t[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Enum returns the string at key when it is one of allowed; otherwise def.
func (t Tree) Enum(key, def string, allowed ...string) string {
	s := t.String(key, def)
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	return def
}

// Bool returns the boolean at key, or def when absent.
func (t Tree) Bool(key string, def bool) bool {
	switch v := t[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int returns the integer at key, tolerating the float64 that encoding/json
// produces, or def when absent.
func (t Tree) Int(key string, def int) int {
	switch v := t[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns the float at key, or def when absent.
func (t Tree) Float(key string, def float64) float64 {
	switch v := t[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// StringList returns the strings at key. Accepts a JSON array of strings or a
// comma-separated string; returns nil when absent.
func (t Tree) StringList(key string) []string {
	switch v := t[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Child returns the nested Tree at key, or nil when absent.
func (t Tree) Child(key string) Tree {
	switch v := t[key].(type) {
	case Tree:
		return v
	case map[string]any:
		return Tree(v)
	}
	return nil
}
