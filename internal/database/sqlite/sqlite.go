// Package sqlite provides a file-backed embedding cache.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/kozaktomas/face-labeler/internal/database"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
  content_hash TEXT NOT NULL,
  provider TEXT NOT NULL,
  dim INTEGER NOT NULL,
  embedding BLOB NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (content_hash, provider)
);
`

// Cache is a SQLite-backed database.EmbeddingCache.
type Cache struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the cache file at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("sqlite cache path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	// Worker goroutines share the handle; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &Cache{path: path, db: db}, nil
}

// Get returns the cached vector for key.
func (c *Cache) Get(ctx context.Context, key database.CacheKey) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var blob []byte
	var dim int
	err := c.db.QueryRowContext(ctx,
		`SELECT dim, embedding FROM embedding_cache WHERE content_hash = ? AND provider = ?`,
		key.ContentHash, key.Provider,
	).Scan(&dim, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cached embedding: %w", err)
	}

	vec, err := decodeVector(blob, dim)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Put stores the vector for key, replacing any previous value.
func (c *Cache) Put(ctx context.Context, key database.CacheKey, embedding []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (content_hash, provider, dim, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_hash, provider)
		DO UPDATE SET dim = excluded.dim, embedding = excluded.embedding, created_at = CURRENT_TIMESTAMP
	`, key.ContentHash, key.Provider, len(embedding), encodeVector(embedding))
	if err != nil {
		return fmt.Errorf("store cached embedding: %w", err)
	}
	return nil
}

// Delete removes cached vectors for the given content hashes.
func (c *Cache) Delete(ctx context.Context, contentHashes []string) (int, error) {
	if len(contentHashes) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(contentHashes)), ",")
	args := make([]any, len(contentHashes))
	for i, h := range contentHashes {
		args[i] = h
	}

	//nolint:gosec // placeholders only, values are bound
	res, err := c.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE content_hash IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete cached embeddings: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes every cached vector.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM embedding_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear embedding cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of cached vectors.
func (c *Cache) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cached embeddings: %w", err)
	}
	return count, nil
}

// Close closes the database handle.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return fmt.Errorf("closing sqlite cache: %w", err)
	}
	return nil
}

var _ database.EmbeddingCache = (*Cache)(nil)

// encodeVector packs a vector as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != 4*dim {
		return nil, fmt.Errorf("corrupt cached embedding: %d bytes for dim %d", len(blob), dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}
