package insights

import (
	"strconv"
	"strings"
)

// Field helpers for reading values out of the generic JSON objects the model
// returns. The model is expected to emit numbers for scores and amounts but
// in practice sometimes produces strings or omits keys, so every numeric leaf
// is coerced with a 0 default rather than rejected.

// NumberField coerces m[key] to a float64, defaulting to 0 for missing keys
// and non-numeric values.
func NumberField(m map[string]interface{}, key string) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// StringField returns m[key] as a trimmed string, or "" when absent or not a
// string.
func StringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// StringSliceField returns m[key] as a list of strings, skipping non-string
// elements. Absent keys yield nil; callers treat nil as empty.
func StringSliceField(m map[string]interface{}, key string) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ObjectField returns m[key] as a nested object, or nil when absent or of the
// wrong shape.
func ObjectField(m map[string]interface{}, key string) map[string]interface{} {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return obj
}
