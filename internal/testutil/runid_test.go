package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDs_Sequential(t *testing.T) {
	gen := NewRunIDs("batch")
	assert.Equal(t, "batch-0001", gen.Generate())
	assert.Equal(t, "batch-0002", gen.Generate())
}

func TestRunIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "run-0001", NewRunIDs("").Generate())
}

func TestRunIDs_ThreadSafe(t *testing.T) {
	gen := NewRunIDs("")
	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, 1000)
}
