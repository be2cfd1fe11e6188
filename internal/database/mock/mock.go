// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/face-labeler/internal/database"
)

// MockEmbeddingCache is an in-memory database.EmbeddingCache
type MockEmbeddingCache struct {
	mu      sync.RWMutex
	entries map[database.CacheKey][]float32

	// Track calls
	GetCalls []database.CacheKey
	PutCalls []database.CacheKey

	// Error injection
	GetError    error
	PutError    error
	DeleteError error
	ClearError  error
	CountError  error
	CloseError  error

	Closed bool
}

// NewMockEmbeddingCache creates a new mock embedding cache
func NewMockEmbeddingCache() *MockEmbeddingCache {
	return &MockEmbeddingCache{
		entries: make(map[database.CacheKey][]float32),
	}
}

// Get retrieves a cached vector
func (m *MockEmbeddingCache) Get(ctx context.Context, key database.CacheKey) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls = append(m.GetCalls, key)
	if m.GetError != nil {
		return nil, false, m.GetError
	}
	vec, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(vec), true, nil
}

// Put stores a vector
func (m *MockEmbeddingCache) Put(ctx context.Context, key database.CacheKey, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = append(m.PutCalls, key)
	if m.PutError != nil {
		return m.PutError
	}
	m.entries[key] = slices.Clone(embedding)
	return nil
}

// Delete removes all providers' vectors for the given hashes
func (m *MockEmbeddingCache) Delete(ctx context.Context, contentHashes []string) (int, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.entries {
		if slices.Contains(contentHashes, key.ContentHash) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// Clear removes everything
func (m *MockEmbeddingCache) Clear(ctx context.Context) (int, error) {
	if m.ClearError != nil {
		return 0, m.ClearError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	clear(m.entries)
	return n, nil
}

// Count returns the number of stored vectors
func (m *MockEmbeddingCache) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close marks the cache closed
func (m *MockEmbeddingCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

var _ database.EmbeddingCache = (*MockEmbeddingCache)(nil)
