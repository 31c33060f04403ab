package idmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemapper_RoundTrip(t *testing.T) {
	m := New()
	assert.Equal(t, "1", m.Add("uuid-A", "first"))
	assert.Equal(t, "2", m.Add("uuid-B", "second"))

	assert.Equal(t, []string{"uuid-B"}, m.Resolve([]string{"2", "9"}))
	assert.Equal(t, []Entry{{ID: "1", Description: "first"}, {ID: "2", Description: "second"}}, m.Entries())
}

func TestRemapper_Bijection(t *testing.T) {
	m := New()
	for i := 0; i < 100; i++ {
		m.Add(fmt.Sprintf("ext-%03d", i), "")
	}
	require.Equal(t, 100, m.Len())

	for i := 0; i < 100; i++ {
		ext := fmt.Sprintf("ext-%03d", i)
		alias, ok := m.Numeric(ext)
		require.True(t, ok)
		back, ok := m.External(alias)
		require.True(t, ok)
		assert.Equal(t, ext, back)
	}
}

func TestRemapper_ExtendKeepsExistingAliases(t *testing.T) {
	m := New()
	m.Add("a", "A")
	m.Add("b", "B")

	// widening with an overlapping set continues the numbering
	assert.Equal(t, "2", m.Add("b", "B again"))
	assert.Equal(t, "3", m.Add("c", "C"))
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, "B", m.Entries()[1].Description)
}

func TestRemapper_UnknownAliasesNeverResolve(t *testing.T) {
	m := New()
	m.Add("a", "")

	_, ok := m.External("0")
	assert.False(t, ok)
	_, ok = m.External("a")
	assert.False(t, ok)

	assert.Empty(t, m.Resolve([]string{"", "0", "2", "-1", "one"}))
}

func TestRemapper_ResolveDeduplicates(t *testing.T) {
	m := New()
	m.Add("a", "")
	m.Add("b", "")

	assert.Equal(t, []string{"b", "a"}, m.Resolve([]string{"2", "1", "2"}))
}
