package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-labeler/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingCache provides PostgreSQL-backed embedding cache storage
type EmbeddingCache struct {
	pool *Pool
}

// NewEmbeddingCache creates a new PostgreSQL embedding cache
func NewEmbeddingCache(pool *Pool) *EmbeddingCache {
	return &EmbeddingCache{pool: pool}
}

// Get retrieves a cached embedding
func (c *EmbeddingCache) Get(ctx context.Context, key database.CacheKey) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := c.pool.queryRow(ctx,
		`SELECT embedding FROM embedding_cache WHERE content_hash = $1 AND provider = $2`,
		key.ContentHash, key.Provider,
	).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cached embedding: %w", err)
	}
	return vec.Slice(), true, nil
}

// Stored returns the full cache row, or nil when absent
func (c *EmbeddingCache) Stored(ctx context.Context, key database.CacheKey) (*database.StoredEmbedding, error) {
	var emb database.StoredEmbedding
	var vec pgvector.Vector
	err := c.pool.queryRow(ctx, `
		SELECT content_hash, provider, embedding, dim, created_at
		FROM embedding_cache
		WHERE content_hash = $1 AND provider = $2
	`, key.ContentHash, key.Provider).Scan(
		&emb.ContentHash,
		&emb.Provider,
		&vec,
		&emb.Dim,
		&emb.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cached embedding: %w", err)
	}
	emb.Embedding = vec.Slice()
	return &emb, nil
}

// Put stores an embedding (upsert)
func (c *EmbeddingCache) Put(ctx context.Context, key database.CacheKey, embedding []float32) error {
	query := `
		INSERT INTO embedding_cache (content_hash, provider, embedding, dim)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash, provider) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			created_at = NOW()
	`
	_, err := c.pool.exec(ctx, query, key.ContentHash, key.Provider, pgvector.NewVector(embedding), len(embedding))
	if err != nil {
		return fmt.Errorf("store cached embedding: %w", err)
	}
	return nil
}

// Delete removes cached embeddings for the given content hashes
func (c *EmbeddingCache) Delete(ctx context.Context, contentHashes []string) (int, error) {
	if len(contentHashes) == 0 {
		return 0, nil
	}
	res, err := c.pool.exec(ctx, `DELETE FROM embedding_cache WHERE content_hash = ANY($1)`, pq.Array(contentHashes))
	if err != nil {
		return 0, fmt.Errorf("delete cached embeddings: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes every cached embedding
func (c *EmbeddingCache) Clear(ctx context.Context) (int, error) {
	res, err := c.pool.exec(ctx, `DELETE FROM embedding_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear embedding cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the total number of cached embeddings
func (c *EmbeddingCache) Count(ctx context.Context) (int, error) {
	var count int
	if err := c.pool.queryRow(ctx, "SELECT COUNT(*) FROM embedding_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("count cached embeddings: %w", err)
	}
	return count, nil
}

// Close closes the underlying pool
func (c *EmbeddingCache) Close() error {
	return c.pool.Close()
}

var _ database.EmbeddingCache = (*EmbeddingCache)(nil)
