// Package idmap swaps entity IDs for short sequential aliases ("1", "2", ...)
// before candidates go into an LLM prompt, and maps the model's answer back.
// A Remapper lives for one selector call; its aliases mean nothing outside it.
package idmap

import "strconv"

// Entry is one candidate as shown to the model.
type Entry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type Remapper struct {
	toExternal map[string]string
	toNumeric  map[string]string
	entries    []Entry
}

func New() *Remapper {
	return &Remapper{
		toExternal: make(map[string]string),
		toNumeric:  make(map[string]string),
	}
}

// Add registers externalID and returns its alias. An ID that is already
// mapped keeps its alias and its first description.
func (m *Remapper) Add(externalID, description string) string {
	if alias, ok := m.toNumeric[externalID]; ok {
		return alias
	}
	alias := strconv.Itoa(len(m.toNumeric) + 1)
	m.toNumeric[externalID] = alias
	m.toExternal[alias] = externalID
	m.entries = append(m.entries, Entry{ID: alias, Description: description})
	return alias
}

func (m *Remapper) Numeric(externalID string) (string, bool) {
	alias, ok := m.toNumeric[externalID]
	return alias, ok
}

func (m *Remapper) External(alias string) (string, bool) {
	id, ok := m.toExternal[alias]
	return id, ok
}

// Resolve maps aliases back to external IDs in order. Unknown aliases are
// dropped and duplicates collapse to their first occurrence.
func (m *Remapper) Resolve(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	seen := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		id, ok := m.toExternal[a]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Entries returns the alias/description pairs in registration order.
func (m *Remapper) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

func (m *Remapper) Len() int {
	return len(m.entries)
}
