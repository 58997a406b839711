package classifier

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Raw details arrive either straight from a provider or decoded back from
// storage, so numbers may be any Go numeric type or json.Number.

func num(d map[string]any, key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func str(d map[string]any, key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

func flag(d map[string]any, key string) (value, present bool) {
	v, ok := d[key].(bool)
	return v, ok
}

func strs(d map[string]any, key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// summarize renders scalar fields as sorted key=value pairs.
func summarize(d map[string]any, limit int) string {
	keys := make([]string, 0, len(d))
	for k, v := range d {
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, d[k])
	}
	return strings.Join(pairs, ", ")
}
