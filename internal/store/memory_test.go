package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Value int `json:"value"`
}

func TestMemory_CreateIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.Create(ctx, "idx", "a", testDoc{Value: 1})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.Create(ctx, "idx", "a", testDoc{Value: 2})
	require.NoError(t, err)
	assert.False(t, created)

	doc, ok := m.Get("idx", "a")
	require.True(t, ok)
	assert.JSONEq(t, `{"value":1}`, string(doc))

	exists, err := m.Exists(ctx, "idx", "a")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.Exists(ctx, "other", "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := m.Create(ctx, "idx", "same", testDoc{Value: 7})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, m.Count("idx"))
}

func TestMemory_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "idx", "a", testDoc{Value: 1}))
	require.NoError(t, m.Put(ctx, "idx", "a", testDoc{Value: 2}))

	doc, _ := m.Get("idx", "a")
	assert.JSONEq(t, `{"value":2}`, string(doc))
}

func TestMemory_Search(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _ = m.Create(ctx, "idx", "b", testDoc{Value: 2})
	_, _ = m.Create(ctx, "idx", "a", testDoc{Value: 1})

	resp, err := m.Search(ctx, "idx", map[string]any{"size": 10})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, "a", resp.Hits[0].ID)

	canned := &SearchResponse{Aggregations: map[string]json.RawMessage{"x": json.RawMessage(`{"value":3}`)}}
	m.SetSearchResponse("idx", canned)
	resp, err = m.Search(ctx, "idx", nil)
	require.NoError(t, err)
	assert.Same(t, canned, resp)

	searches := m.Searches()
	require.Len(t, searches, 2)
	assert.Equal(t, map[string]any{"size": 10}, searches[0].Body)
}

func TestMemory_SetError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")
	m.SetError(boom)

	_, err := m.Exists(ctx, "idx", "a")
	require.ErrorIs(t, err, boom)
	_, err = m.Create(ctx, "idx", "a", testDoc{})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, m.Put(ctx, "idx", "a", testDoc{}), boom)
	_, err = m.Search(ctx, "idx", nil)
	require.ErrorIs(t, err, boom)

	m.SetError(nil)
	_, err = m.Exists(ctx, "idx", "a")
	require.NoError(t, err)
}
