// Package database holds the embedding cache contract and its storage backends.
//
// The cache is a derived store: it maps (image content hash, provider id) to
// the vector the provider produced, so rebuilding the reference index does not
// re-run the model on unchanged class-store images. The class store remains
// the source of truth; dropping the cache only costs recomputation.
package database

import (
	"context"
	"time"
)

// CacheKey identifies a cached embedding.
type CacheKey struct {
	ContentHash string // sha256 of the image bytes, hex
	Provider    string // provider and model identifier
}

// StoredEmbedding represents an embedding stored in the cache
type StoredEmbedding struct {
	ContentHash string
	Provider    string
	Embedding   []float32
	Dim         int
	CreatedAt   time.Time
}

// EmbeddingCache stores provider output keyed by image content.
type EmbeddingCache interface {
	// Get returns the cached vector and true, or nil and false when absent
	Get(ctx context.Context, key CacheKey) ([]float32, bool, error)
	// Put stores (or replaces) the vector for key
	Put(ctx context.Context, key CacheKey, embedding []float32) error
	// Delete removes cached vectors for the given content hashes (all providers)
	Delete(ctx context.Context, contentHashes []string) (int, error)
	// Clear removes every cached vector
	Clear(ctx context.Context) (int, error)
	// Count returns the number of cached vectors
	Count(ctx context.Context) (int, error)
	// Close releases the backend's resources
	Close() error
}
