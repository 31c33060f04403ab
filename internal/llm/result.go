package llm

import (
	"sort"
	"strconv"
	"strings"
)

// Result is a parsed model reply: either an ObjectResult or a ListResult.
type Result interface {
	isResult()
	// Items returns the list the reply carries: the list itself, or the
	// single list-valued field of an object.
	Items() []any
}

type ObjectResult map[string]any

type ListResult []any

func (ObjectResult) isResult() {}
func (ListResult) isResult()   {}

func (r ListResult) Items() []any { return r }

// Items picks the object's list field. With several list fields, a
// "selected_" field wins, then the alphabetically first.
func (r ObjectResult) Items() []any {
	var keys []string
	for k, v := range r {
		if _, ok := v.([]any); ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(k, "selected_") {
			return r[k].([]any)
		}
	}
	return r[keys[0]].([]any)
}

// SelectedIDs extracts candidate aliases from a selection reply. An object
// is read at key, falling back to its only list field when the model renamed
// the key. Items may be strings, numbers, or objects carrying an id field.
func SelectedIDs(res Result, key string) []string {
	var items []any
	switch r := res.(type) {
	case ObjectResult:
		if v, ok := r[key].([]any); ok {
			items = v
		} else {
			items = r.Items()
		}
	case ListResult:
		items = r
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		if id, ok := idOf(it); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func idOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return "", false
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "id" || strings.HasSuffix(k, "_id") {
				return idOf(t[k])
			}
		}
	}
	return "", false
}

// String renders a scalar field as text; nil becomes "".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Bool reads true, "true" and "True" as true.
func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	}
	return false
}

// Strings converts a list field into strings, skipping non-scalars.
func Strings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := String(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}
