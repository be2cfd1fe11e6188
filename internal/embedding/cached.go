package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kozaktomas/face-labeler/internal/database"
)

// ContentHash returns the hex sha256 of the file at path.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Cached serves embeddings from an EmbeddingCache and falls back to the
// wrapped provider on a miss. Cache failures are logged and ignored: the
// cache only ever saves work.
type Cached struct {
	inner Provider
	cache database.EmbeddingCache
	log   *slog.Logger
}

// NewCached wraps p with cache. A nil cache returns p unchanged.
func NewCached(p Provider, cache database.EmbeddingCache, log *slog.Logger) Provider {
	if cache == nil {
		return p
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cached{inner: p, cache: cache, log: log}
}

func (c *Cached) ID() string { return c.inner.ID() }

func (c *Cached) Embed(ctx context.Context, path string) ([]float32, error) {
	hash, err := ContentHash(path)
	if err != nil {
		// Let the provider report the unreadable file its own way.
		return c.inner.Embed(ctx, path)
	}
	key := database.CacheKey{ContentHash: hash, Provider: c.inner.ID()}

	vec, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("embedding cache lookup failed", "path", path, "error", err)
	} else if ok && len(vec) > 0 {
		c.log.Debug("embedding cache hit", "path", path)
		return vec, nil
	}

	vec, err = c.inner.Embed(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrNoEmbedding
	}

	if err := c.cache.Put(ctx, key, vec); err != nil {
		c.log.Warn("embedding cache store failed", "path", path, "error", err)
	}
	return vec, nil
}
