package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/queryir"
)

func TestFixedIDGenerator_ReturnsSameID(t *testing.T) {
	gen := NewFixedIDGenerator("rec-123")

	// Multiple calls return same id
	assert.Equal(t, "rec-123", gen.Generate())
	assert.Equal(t, "rec-123", gen.Generate())
}

func TestFixedIDGenerator_EmptyDefault(t *testing.T) {
	assert.Equal(t, "test-reconcile", NewFixedIDGenerator("").Generate())
}

func TestSequentialIDGenerator(t *testing.T) {
	gen := NewSequentialIDGenerator("r")
	assert.Equal(t, "r-1", gen.Generate())
	assert.Equal(t, "r-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "r-1", gen.Generate())
}

func TestSequentialIDGenerator_Concurrent(t *testing.T) {
	gen := NewSequentialIDGenerator("r")
	var wg sync.WaitGroup
	seen := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- gen.Generate()
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[string]bool{}
	for id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 100)
}

func TestBlogStore_Migrated(t *testing.T) {
	st, reg := BlogStore(t)
	ctx := context.Background()

	for _, typ := range reg.Types() {
		n, err := st.Count(ctx, queryir.Count{From: typ.Table})
		require.NoError(t, err, typ.Name)
		assert.Zero(t, n)
	}

	_, err := st.Insert(ctx, queryir.Insert{Into: "posts_tags", Values: ir.IRObject{
		"post_id": ir.IRInt(1), "tag_slug": ir.IRString("go"),
	}})
	assert.Error(t, err, "join rows must reference existing posts and tags")
}
