package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-labeler/internal/database"
)

// EmbeddingCache stores embeddings as JSON lists in a MEDIUMBLOB column.
type EmbeddingCache struct {
	pool *Pool
}

// NewEmbeddingCache creates a cache over an open pool. Call Pool.Migrate first.
func NewEmbeddingCache(pool *Pool) *EmbeddingCache {
	return &EmbeddingCache{pool: pool}
}

// Get retrieves a cached embedding.
func (c *EmbeddingCache) Get(ctx context.Context, key database.CacheKey) ([]float32, bool, error) {
	var data []byte
	err := c.pool.db.QueryRowContext(ctx,
		`SELECT embedding_json FROM embedding_cache WHERE content_hash = ? AND provider = ?`,
		key.ContentHash, key.Provider,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cached embedding: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached embedding: %w", err)
	}
	return vec, true, nil
}

// Put stores an embedding, replacing any previous value.
func (c *EmbeddingCache) Put(ctx context.Context, key database.CacheKey, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	query := `
		INSERT INTO embedding_cache (content_hash, provider, dim, embedding_json)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE dim = VALUES(dim), embedding_json = VALUES(embedding_json), created_at = CURRENT_TIMESTAMP
	`
	if _, err := c.pool.db.ExecContext(ctx, query, key.ContentHash, key.Provider, len(embedding), data); err != nil {
		return fmt.Errorf("store cached embedding: %w", err)
	}
	return nil
}

// Delete removes cached embeddings for the given content hashes.
func (c *EmbeddingCache) Delete(ctx context.Context, contentHashes []string) (int, error) {
	if len(contentHashes) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(contentHashes)), ",")
	args := make([]any, len(contentHashes))
	for i, h := range contentHashes {
		args[i] = h
	}

	//nolint:gosec // placeholders only
	res, err := c.pool.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE content_hash IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete cached embeddings: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes every cached embedding.
func (c *EmbeddingCache) Clear(ctx context.Context) (int, error) {
	res, err := c.pool.db.ExecContext(ctx, `DELETE FROM embedding_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear embedding cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of cached embeddings.
func (c *EmbeddingCache) Count(ctx context.Context) (int, error) {
	var count int
	if err := c.pool.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cached embeddings: %w", err)
	}
	return count, nil
}

// Close closes the underlying pool.
func (c *EmbeddingCache) Close() error {
	return c.pool.Close()
}

var _ database.EmbeddingCache = (*EmbeddingCache)(nil)
