package graph

import (
	"fmt"
	"strconv"
)

// Row is an ordered field mapping returned by Query and FullTextQuery.
// Values are normalised to string, int64, float64, bool, []string or nil.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow pairs keys with values positionally
func NewRow(keys []string, values []any) Row {
	r := Row{keys: keys, values: make(map[string]any, len(keys))}
	for i, k := range keys {
		if i < len(values) {
			r.values[k] = normalizeValue(values[i])
		} else {
			r.values[k] = nil
		}
	}
	return r
}

// Keys returns the field names in order
func (r Row) Keys() []string {
	return r.keys
}

// Get returns a raw value
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// String returns the value as a string, "" when absent or null
func (r Row) String(key string) string {
	switch v := r.values[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// NullableString returns nil for absent, null or empty values
func (r Row) NullableString(key string) *string {
	s := r.String(key)
	if s == "" {
		return nil
	}
	return &s
}

// Int returns the value as an int64, 0 when not numeric
func (r Row) Int(key string) int64 {
	switch v := r.values[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Float returns the value as a float64, 0 when not numeric
func (r Row) Float(key string) float64 {
	switch v := r.values[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Strings returns a list value, dropping nulls and empty strings
func (r Row) Strings(key string) []string {
	list, _ := r.values[key].([]string)
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case []byte:
		return string(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return v
	}
}
