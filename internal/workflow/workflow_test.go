package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-labeler/internal/classstore"
	"github.com/kozaktomas/face-labeler/internal/embedding"
	"github.com/kozaktomas/face-labeler/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deciderFunc adapts a function to Decider.
type deciderFunc func(ctx context.Context, req Request) (Decision, error)

func (f deciderFunc) Decide(ctx context.Context, req Request) (Decision, error) { return f(ctx, req) }

// recordingDecider also captures Finish.
type recordingDecider struct {
	deciderFunc
	requests []Request
	finished *Summary
}

func (r *recordingDecider) Decide(ctx context.Context, req Request) (Decision, error) {
	r.requests = append(r.requests, req)
	return r.deciderFunc(ctx, req)
}

func (r *recordingDecider) Finish(s Summary) { r.finished = &s }

type env struct {
	pool    []string
	store   *classstore.Store
	index   *index.ReferenceIndex
	vectors map[string][]float32 // by base name; missing means no face
}

func newEnv(t *testing.T, names ...string) *env {
	t.Helper()
	poolDir := t.TempDir()
	e := &env{vectors: map[string][]float32{}}
	for _, n := range names {
		p := filepath.Join(poolDir, n)
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
		e.pool = append(e.pool, p)
	}
	var err error
	e.store, err = classstore.Open(t.TempDir())
	require.NoError(t, err)
	e.index, err = index.New(index.Options{})
	require.NoError(t, err)
	return e
}

func (e *env) provider() embedding.Provider {
	return embedding.Func{Name: "test", Fn: func(ctx context.Context, path string) ([]float32, error) {
		v, ok := e.vectors[filepath.Base(path)]
		if !ok {
			return nil, fmt.Errorf("%w: no face", embedding.ErrNoEmbedding)
		}
		return v, nil
	}}
}

func (e *env) config(d Decider) Config {
	return Config{
		Pool:         e.pool,
		Provider:     e.provider(),
		Index:        e.index,
		Store:        e.store,
		Decider:      d,
		Threshold:    0.65,
		EmbedTimeout: time.Second,
	}
}

func (e *env) storeFiles(t *testing.T) int {
	t.Helper()
	labels, err := e.store.Labels()
	require.NoError(t, err)
	n := 0
	for _, l := range labels {
		images, err := e.store.Images(l)
		require.NoError(t, err)
		n += len(images)
	}
	return n
}

func run(t *testing.T, cfg Config) Summary {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)
	s, err := w.Run(context.Background())
	require.NoError(t, err)
	require.True(t, s.Reconciles(), "summary must reconcile: %+v", s)
	return s
}

func TestRun_FailuresReconcile(t *testing.T) {
	// 6 images, 2 without a face; the human labels everything that has one
	// and skips the rest.
	e := newEnv(t, "1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg", "6.jpg")
	e.vectors["1.jpg"] = []float32{1, 0}
	e.vectors["3.jpg"] = []float32{0, 1}
	e.vectors["4.jpg"] = []float32{1, 0.1}
	e.vectors["6.jpg"] = []float32{0.1, 1}

	d := deciderFunc(func(ctx context.Context, req Request) (Decision, error) {
		if req.Candidate.Err != "" {
			return SkipDecision(), nil
		}
		if req.Candidate.Embedding[0] > 0.5 {
			return Accept("alice"), nil
		}
		return Accept("Bob"), nil
	})

	s := run(t, e.config(d))
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 6, s.Processed)
	assert.Equal(t, 2, s.EmbeddingFailures)
	assert.GreaterOrEqual(t, s.Skipped, 2)
	assert.Equal(t, 4, s.ManuallyLabeled)
	assert.Zero(t, s.AutoAccepted)
	assert.Equal(t, 4, e.storeFiles(t))

	labels, err := e.store.Labels()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "alice"}, labels)
}

func TestRun_AutoAccept(t *testing.T) {
	e := newEnv(t, "a.jpg", "b.jpg")
	e.vectors["a.jpg"] = []float32{1, 0}
	e.vectors["b.jpg"] = []float32{1, 0.05}
	require.NoError(t, e.index.Absorb("alice", []float32{1, 0}))

	d := &recordingDecider{deciderFunc: func(context.Context, Request) (Decision, error) {
		return Decision{}, errors.New("decider must not be asked")
	}}
	cfg := e.config(d)
	cfg.AutoAccept = true

	s := run(t, cfg)
	assert.Equal(t, 2, s.AutoAccepted)
	assert.Empty(t, d.requests)
	require.NotNil(t, d.finished)
	assert.Equal(t, 2, d.finished.Processed)
	for _, c := range s.Commits {
		assert.Equal(t, MethodAuto, c.Method)
		assert.True(t, c.Absorbed)
	}
	assert.Equal(t, 3, e.index.Stats().PerLabel["alice"])
}

func TestRun_AbsorbedLabelIsSuggestedNext(t *testing.T) {
	e := newEnv(t, "a.jpg", "b.jpg")
	e.vectors["a.jpg"] = []float32{0.3, 0.9}
	e.vectors["b.jpg"] = []float32{0.3, 0.9}

	d := &recordingDecider{deciderFunc: func(ctx context.Context, req Request) (Decision, error) {
		if req.Candidate.Suggestion != nil {
			return Accept(req.Candidate.Suggestion.Label), nil
		}
		return Accept("alice"), nil
	}}

	s := run(t, e.config(d))
	require.Len(t, d.requests, 2)
	assert.Nil(t, d.requests[0].Candidate.Suggestion)
	require.NotNil(t, d.requests[1].Candidate.Suggestion)
	assert.Equal(t, "alice", d.requests[1].Candidate.Suggestion.Label)
	assert.InDelta(t, 1.0, d.requests[1].Candidate.Suggestion.Score, 1e-6)
	assert.Equal(t, []string{"alice"}, d.requests[1].Labels)
	assert.Equal(t, 2, s.ManuallyLabeled)
}

func TestRun_ManualLabelWithoutEmbeddingIsNotAbsorbed(t *testing.T) {
	e := newEnv(t, "noface.jpg")

	s := run(t, e.config(deciderFunc(func(context.Context, Request) (Decision, error) {
		return Accept("  Jiří Novák "), nil
	})))

	require.Len(t, s.Commits, 1)
	assert.Equal(t, "Jiri_Novak", s.Commits[0].Label)
	assert.False(t, s.Commits[0].Absorbed)
	assert.Zero(t, e.index.Len())
	assert.Equal(t, 1, e.storeFiles(t))
}

func TestRun_UnreadableImageSkipsWithoutDecision(t *testing.T) {
	e := newEnv(t, "bad.jpg", "good.jpg")
	e.vectors["good.jpg"] = []float32{1, 0}

	d := &recordingDecider{deciderFunc: func(context.Context, Request) (Decision, error) {
		return Accept("alice"), nil
	}}
	cfg := e.config(d)
	cfg.VerifyDecode = true
	cfg.Verify = func(path string) error {
		if filepath.Base(path) == "bad.jpg" {
			return errors.New("truncated")
		}
		return nil
	}

	s := run(t, cfg)
	require.Len(t, d.requests, 1)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, e.pool[0], s.Skips[0].Path)
	assert.Contains(t, s.Skips[0].Reason, ReasonUnreadable)
	assert.Zero(t, s.EmbeddingFailures)
}

func TestRun_InvalidLabels(t *testing.T) {
	t.Run("retry then accept", func(t *testing.T) {
		e := newEnv(t, "a.jpg")
		answers := []string{"???", "Alice"}
		d := &recordingDecider{deciderFunc: func(ctx context.Context, req Request) (Decision, error) {
			return Accept(answers[req.Attempt-1]), nil
		}}

		s := run(t, e.config(d))
		assert.Equal(t, 1, s.ManuallyLabeled)
		require.Len(t, d.requests, 2)
		assert.Empty(t, d.requests[0].Problem)
		assert.Contains(t, d.requests[1].Problem, "???")
	})

	t.Run("give up", func(t *testing.T) {
		e := newEnv(t, "a.jpg")
		d := &recordingDecider{deciderFunc: func(context.Context, Request) (Decision, error) {
			return Accept("!!!"), nil
		}}
		cfg := e.config(d)
		cfg.MaxAttempts = 2

		s := run(t, cfg)
		assert.Len(t, d.requests, 2)
		assert.Equal(t, 1, s.Skipped)
		assert.Equal(t, ReasonInvalidLabel, s.Skips[0].Reason)
		assert.Zero(t, e.storeFiles(t))
	})
}

func TestRun_Quit(t *testing.T) {
	e := newEnv(t, "a.jpg", "b.jpg", "c.jpg")
	d := &recordingDecider{deciderFunc: func(ctx context.Context, req Request) (Decision, error) {
		if req.Candidate.Position == 2 {
			return Decision{}, ErrQuit
		}
		return Accept("alice"), nil
	}}

	s := run(t, e.config(d))
	assert.True(t, s.Quit)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Processed)
	require.NotNil(t, d.finished)
	assert.True(t, d.finished.Quit)
}

type failingStore struct{ err error }

func (f failingStore) Commit(string, string) (string, error) { return "", f.err }

func TestRun_CommitFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"permission", fmt.Errorf("%w: open: permission denied", classstore.ErrPermission), ReasonPermissionDenied},
		{"other", errors.New("disk full"), ReasonCommitFailed + ": disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "a.jpg", "b.jpg")
			e.vectors["a.jpg"] = []float32{1, 0}
			cfg := e.config(deciderFunc(func(context.Context, Request) (Decision, error) {
				return Accept("alice"), nil
			}))
			cfg.Store = failingStore{err: tt.err}

			s := run(t, cfg)
			assert.Equal(t, 2, s.Skipped)
			assert.Equal(t, tt.reason, s.Skips[0].Reason)
			assert.Zero(t, e.index.Len(), "index only updated after a successful commit")
		})
	}
}

func TestRun_DimensionMismatchIsFatal(t *testing.T) {
	e := newEnv(t, "a.jpg")
	e.vectors["a.jpg"] = []float32{1, 0, 0}
	require.NoError(t, e.index.Absorb("alice", []float32{1, 0}))

	w, err := New(e.config(deciderFunc(func(context.Context, Request) (Decision, error) {
		return SkipDecision(), nil
	})))
	require.NoError(t, err)

	_, err = w.Run(context.Background())
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)
	assert.Equal(t, Embedding, w.State())
}

func TestRun_EmbeddingTimeout(t *testing.T) {
	e := newEnv(t, "slow.jpg")
	cfg := e.config(deciderFunc(func(ctx context.Context, req Request) (Decision, error) {
		assert.NotEmpty(t, req.Candidate.Err)
		return SkipDecision(), nil
	}))
	cfg.EmbedTimeout = 5 * time.Millisecond
	cfg.Provider = embedding.Func{Name: "slow", Fn: func(ctx context.Context, path string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	s := run(t, cfg)
	assert.Equal(t, 1, s.EmbeddingFailures)
	assert.Equal(t, 1, s.Skipped)
}

func TestRun_EmptyVectorWithoutTimeoutIsAbsent(t *testing.T) {
	e := newEnv(t, "a.jpg", "b.jpg")
	cfg := e.config(deciderFunc(func(ctx context.Context, req Request) (Decision, error) {
		return Accept("alice"), nil
	}))
	cfg.EmbedTimeout = 0
	cfg.Provider = embedding.Func{Name: "sparse", Fn: func(ctx context.Context, path string) ([]float32, error) {
		if filepath.Base(path) == "a.jpg" {
			return []float32{1, 0, 0}, nil
		}
		return nil, nil
	}}

	s := run(t, cfg)
	assert.Equal(t, 2, s.Processed)
	assert.Equal(t, 2, s.ManuallyLabeled)
	assert.Equal(t, 1, s.EmbeddingFailures)
	require.Len(t, s.Commits, 2)
	assert.True(t, s.Commits[0].Absorbed)
	assert.False(t, s.Commits[1].Absorbed)
}

func TestRun_ZeroEmbeddingIsNeverAutoAccepted(t *testing.T) {
	e := newEnv(t, "blank.jpg")
	e.vectors["blank.jpg"] = []float32{0, 0}
	require.NoError(t, e.index.Absorb("alice", []float32{1, 0}))

	d := &recordingDecider{deciderFunc: func(ctx context.Context, req Request) (Decision, error) {
		assert.Nil(t, req.Candidate.Suggestion)
		return SkipDecision(), nil
	}}
	cfg := e.config(d)
	cfg.Threshold = -1
	cfg.AutoAccept = true

	s := run(t, cfg)
	assert.Zero(t, s.AutoAccepted)
	assert.Equal(t, 1, s.Skipped)
	assert.Len(t, d.requests, 1)
	assert.Zero(t, e.storeFiles(t))
}

func TestRun_EmptyPool(t *testing.T) {
	e := newEnv(t)
	d := &recordingDecider{deciderFunc: func(context.Context, Request) (Decision, error) {
		return SkipDecision(), nil
	}}

	s := run(t, e.config(d))
	assert.Zero(t, s.Processed)
	require.NotNil(t, d.finished)
}

func TestStep_Transitions(t *testing.T) {
	e := newEnv(t, "a.jpg")
	e.vectors["a.jpg"] = []float32{1, 0}

	var events []Event
	cfg := e.config(deciderFunc(func(context.Context, Request) (Decision, error) {
		return Accept("alice"), nil
	}))
	cfg.OnEvent = func(ev Event) { events = append(events, ev) }

	w, err := New(cfg)
	require.NoError(t, err)

	want := []State{Loading, Embedding, Suggesting, AwaitingDecision, Committing, Advancing, Done}
	for _, st := range want {
		got, err := w.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	got, err := w.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, got, "stepping past Done is a no-op")

	require.Len(t, events, len(want))
	assert.Equal(t, Idle, events[0].From)
	assert.Equal(t, "Saved to alice/", events[5].Message)
	assert.Equal(t, "All images processed.", events[6].Message)
}

func TestStep_CancellationAtBoundary(t *testing.T) {
	e := newEnv(t, "a.jpg")
	e.vectors["a.jpg"] = []float32{1, 0}
	ctx, cancel := context.WithCancel(context.Background())

	cfg := e.config(deciderFunc(func(context.Context, Request) (Decision, error) {
		cancel()
		return Accept("alice"), nil
	}))
	w, err := New(cfg)
	require.NoError(t, err)

	s, err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Committing, w.State(), "stopped before the commit started")
	assert.Zero(t, s.Processed)
	assert.Zero(t, e.storeFiles(t))
}

func TestNew_Validation(t *testing.T) {
	e := newEnv(t)
	cfg := e.config(deciderFunc(func(context.Context, Request) (Decision, error) { return SkipDecision(), nil }))

	bad := cfg
	bad.Threshold = 1.5
	_, err := New(bad)
	assert.Error(t, err)

	bad = cfg
	bad.Decider = nil
	_, err = New(bad)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_decision", AwaitingDecision.String())
	assert.Equal(t, "unknown", State(42).String())
}
