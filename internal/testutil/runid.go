package testutil

import (
	"fmt"
	"sync"
)

// RunIDs generates predictable run identifiers: prefix-0001, prefix-0002
// and so on. It satisfies pipeline.RunIDGenerator and never runs out,
// unlike pipeline.FixedGenerator.
type RunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewRunIDs creates a generator. An empty prefix defaults to "run".
func NewRunIDs(prefix string) *RunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &RunIDs{prefix: prefix}
}

// Generate returns the next identifier.
func (g *RunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
