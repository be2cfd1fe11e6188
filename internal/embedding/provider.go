// Package embedding adapts face embedding backends to a single Provider
// contract: an image path goes in, a fixed-length vector (or ErrNoEmbedding)
// comes out.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoEmbedding means the provider could not produce a vector for the image
// (no detectable face, undecodable content, timeout). It is a per-item
// condition, never a fatal one.
var ErrNoEmbedding = errors.New("no embedding produced")

// Provider computes embeddings for image files.
type Provider interface {
	// ID identifies the provider and model; vectors from different IDs must never be compared.
	ID() string
	// Embed returns the embedding for the image at path.
	Embed(ctx context.Context, path string) ([]float32, error)
}

// Func adapts a plain function to the Provider interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, path string) ([]float32, error)
}

func (f Func) ID() string { return f.Name }

func (f Func) Embed(ctx context.Context, path string) ([]float32, error) {
	return f.Fn(ctx, path)
}

// IsAbsent reports whether err means "no embedding for this item" rather
// than something the caller must stop on. Timeouts count as absent.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrNoEmbedding) ||
		errors.Is(err, context.DeadlineExceeded)
}

// EmbedWithTimeout runs p.Embed bounded by timeout. Expiry is reported as
// ErrNoEmbedding wrapping the deadline error.
func EmbedWithTimeout(ctx context.Context, p Provider, path string, timeout time.Duration) ([]float32, error) {
	if timeout <= 0 {
		return nonEmpty(p.Embed(ctx, path))
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vec, err := p.Embed(tctx, path)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: embedding timed out: %w", ErrNoEmbedding, tctx.Err())
	}
	return nonEmpty(vec, err)
}

// nonEmpty reports an empty vector as ErrNoEmbedding.
func nonEmpty(vec []float32, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrNoEmbedding
	}
	return vec, nil
}
