// internal/match/registry.go
package match

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// codeAlphabet excludes glyph pairs that read alike (O/0, I/1, B/8, 2/Z)
// so codes survive being read aloud or typed from a screenshot.
const codeAlphabet = "ACDEFGHJKLMNPQRSTUVWXY345679"

// CodeLength is the size of a match code.
const CodeLength = 4

// Registry owns the mapping of live match codes to matches. Safe for
// concurrent creation, lookup and removal from many connections; lookups
// on unrelated matches do not serialize behind each other.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Match

	// OnCreate runs for every new match before it becomes visible, with
	// the registry lock held. The server uses it to attach the transport.
	OnCreate func(m *Match)
}

func NewRegistry() *Registry {
	return &Registry{matches: make(map[string]*Match)}
}

// Create builds a match under a code not currently in use, regenerating
// on collision. The match's eviction callback is pre-wired back into the
// registry.
func (r *Registry) Create(visibility Visibility, leaderID uuid.UUID, expectedPlayers int) *Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := generateCode()
	for _, taken := r.matches[code]; taken; _, taken = r.matches[code] {
		code = generateCode()
	}

	m := newMatch(code, visibility, leaderID, expectedPlayers)
	m.OnEmpty = func(code string) { r.Remove(code) }
	if r.OnCreate != nil {
		r.OnCreate(m)
	}
	r.matches[code] = m
	return m
}

// Get looks up a match by code.
func (r *Registry) Get(code string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[code]
	return m, ok
}

// Remove evicts a code. Removing an absent code is a no-op.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, code)
}

// Count reports how many matches are live.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// Matches snapshots the live matches. Callers inspect them without the
// registry lock held.
func (r *Registry) Matches() []*Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	return out
}

func generateCode() string {
	buf := make([]byte, CodeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
