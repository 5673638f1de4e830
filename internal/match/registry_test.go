// internal/match/registry_test.go
package match

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodesAreUniqueAndWellFormed(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)

	for i := 0; i < 200; i++ {
		m := r.Create(VisibilityPrivate, uuid.New(), 0)
		require.Len(t, m.Code, CodeLength)
		for _, ch := range m.Code {
			assert.True(t, strings.ContainsRune(codeAlphabet, ch), "code %q uses glyph %q outside the alphabet", m.Code, ch)
		}
		assert.False(t, seen[m.Code], "code %q issued twice", m.Code)
		seen[m.Code] = true
	}
	assert.Equal(t, 200, r.Count())
}

func TestLookupAndRemove(t *testing.T) {
	r := NewRegistry()
	m := r.Create(VisibilityPublic, uuid.Nil, 2)

	got, ok := r.Get(m.Code)
	require.True(t, ok)
	assert.Same(t, m, got)

	r.Remove(m.Code)
	_, ok = r.Get(m.Code)
	assert.False(t, ok)

	// removing again, or removing garbage, is a no-op
	r.Remove(m.Code)
	r.Remove("ZZZZ")
}

func TestOnCreateRunsForEveryMatch(t *testing.T) {
	r := NewRegistry()
	var attached []string
	r.OnCreate = func(m *Match) { attached = append(attached, m.Code) }

	a := r.Create(VisibilityPrivate, uuid.New(), 0)
	b := r.Create(VisibilityPublic, uuid.Nil, 3)
	assert.Equal(t, []string{a.Code, b.Code}, attached)
}
