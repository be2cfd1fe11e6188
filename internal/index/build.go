package index

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-labeler/internal/embedding"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// Source lists reference images grouped by label.
type Source interface {
	// Labels returns label names in lexicographic order.
	Labels() ([]string, error)
	// Images returns the image paths of label in lexicographic filename order.
	Images(label string) ([]string, error)
}

// BuildFailure records a reference image that produced no embedding.
type BuildFailure struct {
	Label string `json:"label"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BuildStats summarizes a Build.
type BuildStats struct {
	Labels   int            `json:"labels"`
	Images   int            `json:"images"`   // images considered (after the cap)
	Embedded int            `json:"embedded"` // images that produced a vector
	Failures []BuildFailure `json:"failures,omitempty"`
	Duration time.Duration  `json:"duration"`
}

type buildJob struct {
	label string
	path  string
}

type buildResult struct {
	vec []float32
	err error
}

// Build creates an index from src, loading at most opts.Cap images per
// label. Embeddings are computed by a bounded worker pool; an image that
// fails is logged and skipped without affecting the others. Vectors are
// added in label then filename order regardless of completion order.
func Build(ctx context.Context, src Source, p embedding.Provider, opts Options, embedTimeout time.Duration) (*ReferenceIndex, BuildStats, error) {
	start := time.Now()
	idx, err := New(opts)
	if err != nil {
		return nil, BuildStats{}, err
	}
	opts = idx.opts
	log := opts.Logger

	labels, err := src.Labels()
	if err != nil {
		return nil, BuildStats{}, fmt.Errorf("listing labels: %w", err)
	}

	var jobs []buildJob
	for _, label := range labels {
		images, err := src.Images(label)
		if err != nil {
			return nil, BuildStats{}, fmt.Errorf("listing images of %s: %w", label, err)
		}
		if len(images) > opts.Cap {
			images = images[:opts.Cap]
		}
		for _, path := range images {
			jobs = append(jobs, buildJob{label: label, path: path})
		}
	}

	stats := BuildStats{Labels: len(labels), Images: len(jobs)}
	if len(jobs) == 0 {
		stats.Duration = time.Since(start)
		return idx, stats, nil
	}

	var bar *progressbar.ProgressBar
	if opts.ShowProgress {
		bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Embedding references"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	results := make([]buildResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := embedding.EmbedWithTimeout(gctx, p, job.path, embedTimeout)
			results[i] = buildResult{vec: vec, err: err}
			if bar != nil {
				_ = bar.Add(1)
			}
			// Per-image failures never cancel the other workers.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	for i, job := range jobs {
		res := results[i]
		if res.err == nil && len(res.vec) == 0 {
			res.err = embedding.ErrNoEmbedding
		}
		if res.err != nil {
			log.Warn("skipping reference image", "label", job.label, "path", job.path, "error", res.err)
			stats.Failures = append(stats.Failures, BuildFailure{Label: job.label, Path: job.path, Error: res.err.Error()})
			continue
		}
		if err := idx.insert(job.label, res.vec, false); err != nil {
			return nil, stats, fmt.Errorf("reference %s: %w", job.path, err)
		}
		stats.Embedded++
	}

	stats.Duration = time.Since(start)
	log.Info("reference index built",
		"labels", stats.Labels,
		"embedded", stats.Embedded,
		"failed", len(stats.Failures),
		"duration", stats.Duration.Round(time.Millisecond))
	return idx, stats, nil
}

// Rebuild resets idx and reloads it from src with the same options.
func (idx *ReferenceIndex) Rebuild(ctx context.Context, src Source, p embedding.Provider, embedTimeout time.Duration) (BuildStats, error) {
	fresh, stats, err := Build(ctx, src, p, idx.opts, embedTimeout)
	if err != nil {
		return stats, err
	}
	*idx = *fresh
	return stats, nil
}
