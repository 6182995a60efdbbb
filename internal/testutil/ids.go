package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns the same correlation id every time.
//
// This enables deterministic golden traces: every reconciliation in a
// scenario carries the same id.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed correlation id generator.
// If id is empty, Generate() returns "test-reconcile".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-reconcile"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

// SequentialIDGenerator returns prefix-1, prefix-2, ...
//
// Unlike FixedIDGenerator, ids stay distinct, so tests can tell
// reconciliations apart in logs and results.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDGenerator creates a generator whose first id is prefix-1.
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Reset restarts the sequence; the next id is prefix-1 again.
func (g *SequentialIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
