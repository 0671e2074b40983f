package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable correlation ids ("<prefix>-1",
// "<prefix>-2", ...), so traces can be compared across runs.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "corr".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "corr"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
