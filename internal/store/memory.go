package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is a concurrency-safe in-memory Store. It backs dry runs and tests.
// It does not evaluate queries: Search returns the canned response registered
// for the index, or every stored document as a hit.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]map[string]json.RawMessage
	canned   map[string]*SearchResponse
	searches []RecordedSearch
	err      error
}

// RecordedSearch is a Search call captured for inspection.
type RecordedSearch struct {
	Index string
	Body  map[string]any
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]map[string]json.RawMessage),
		canned: make(map[string]*SearchResponse),
	}
}

// SetSearchResponse registers the response Search returns for index.
func (m *Memory) SetSearchResponse(index string, resp *SearchResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canned[index] = resp
}

// SetError makes every subsequent call fail with err. Pass nil to recover.
func (m *Memory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) Exists(_ context.Context, index, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.docs[index][id]
	return ok, nil
}

func (m *Memory) Create(_ context.Context, index, id string, doc any) (bool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode document %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.docs[index][id]; ok {
		return false, nil
	}
	m.indexLocked(index)[id] = data
	return true, nil
}

func (m *Memory) Put(_ context.Context, index, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.indexLocked(index)[id] = data
	return nil
}

func (m *Memory) Search(_ context.Context, index string, body map[string]any) (*SearchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.searches = append(m.searches, RecordedSearch{Index: index, Body: body})

	if resp, ok := m.canned[index]; ok {
		return resp, nil
	}

	ids := make([]string, 0, len(m.docs[index]))
	for id := range m.docs[index] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	resp := &SearchResponse{Hits: make([]Hit, 0, len(ids))}
	for _, id := range ids {
		resp.Hits = append(resp.Hits, Hit{ID: id, Source: m.docs[index][id]})
	}
	return resp, nil
}

// Get returns the raw document stored under id.
func (m *Memory) Get(index, id string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[index][id]
	return doc, ok
}

// Count returns the number of documents in index.
func (m *Memory) Count(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[index])
}

// Searches returns every Search call made so far.
func (m *Memory) Searches() []RecordedSearch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedSearch, len(m.searches))
	copy(out, m.searches)
	return out
}

func (m *Memory) indexLocked(index string) map[string]json.RawMessage {
	idx, ok := m.docs[index]
	if !ok {
		idx = make(map[string]json.RawMessage)
		m.docs[index] = idx
	}
	return idx
}

var _ Store = (*Memory)(nil)
