// Package workflow drives pool images one at a time through
// embed, suggest, decide, commit and absorb.
//
// The machine has no UI of its own: Step performs exactly one transition and
// input is requested through a Decider, so the same run can be driven by a
// terminal, an HTTP front-end or a scripted list of decisions.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kozaktomas/face-labeler/internal/classstore"
	"github.com/kozaktomas/face-labeler/internal/constants"
	"github.com/kozaktomas/face-labeler/internal/embedding"
	"github.com/kozaktomas/face-labeler/internal/label"
)

// Skip reasons reported in the summary.
const (
	ReasonUnreadable       = "unreadable image"
	ReasonUserSkip         = "skipped by user"
	ReasonInvalidLabel     = "invalid label"
	ReasonPermissionDenied = "permission denied"
	ReasonCommitFailed     = "commit failed"
)

// Config wires a Workflow.
type Config struct {
	Pool     []string // image paths in processing order
	Provider embedding.Provider
	Index    Matcher
	Store    Committer
	Decider  Decider

	Threshold    float64
	AutoAccept   bool
	EmbedTimeout time.Duration
	// VerifyDecode checks the image header before embedding so unreadable
	// files are skipped without asking for a label.
	VerifyDecode bool
	MaxAttempts  int // invalid labels tolerated per item

	Logger  *slog.Logger
	OnEvent func(Event)
	// Verify overrides the decode check (embedding.Probe by default).
	Verify func(path string) error
	Now    func() time.Time
}

// Workflow is the assignment state machine. It is not safe for concurrent use.
type Workflow struct {
	cfg   Config
	log   *slog.Logger
	state State
	pos   int

	current *Candidate
	pending *Assignment
	summary Summary
	started time.Time
}

// New validates cfg and returns a workflow in the Idle state.
func New(cfg Config) (*Workflow, error) {
	switch {
	case cfg.Provider == nil:
		return nil, errors.New("workflow: provider is required")
	case cfg.Index == nil:
		return nil, errors.New("workflow: index is required")
	case cfg.Store == nil:
		return nil, errors.New("workflow: store is required")
	case cfg.Decider == nil:
		return nil, errors.New("workflow: decider is required")
	case cfg.Threshold < -1 || cfg.Threshold > 1:
		return nil, fmt.Errorf("workflow: threshold %v outside [-1, 1]", cfg.Threshold)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = constants.MaxDecisionAttempts
	}
	if cfg.Verify == nil {
		cfg.Verify = embedding.Probe
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Workflow{
		cfg:     cfg,
		log:     log,
		state:   Idle,
		summary: Summary{Total: len(cfg.Pool)},
	}, nil
}

// State returns the current state.
func (w *Workflow) State() State { return w.state }

// Current returns the candidate being processed, or nil between items.
func (w *Workflow) Current() *Candidate { return w.current }

// Summary returns the counters so far.
func (w *Workflow) Summary() Summary {
	s := w.summary
	if !w.started.IsZero() {
		s.Duration = w.cfg.Now().Sub(w.started)
	}
	return s
}

// Run steps until Done. On error the summary covers what was completed.
func (w *Workflow) Run(ctx context.Context) (Summary, error) {
	for w.state != Done {
		if _, err := w.Step(ctx); err != nil {
			return w.Summary(), err
		}
	}
	return w.Summary(), nil
}

// Step performs one transition and returns the new state. A cancelled
// context is reported before any work starts, so cancellation always lands
// on a state boundary. Errors from Step are fatal for the run; per-item
// problems become skips instead.
func (w *Workflow) Step(ctx context.Context) (State, error) {
	if w.state == Done {
		return Done, nil
	}
	if err := ctx.Err(); err != nil {
		return w.state, err
	}

	switch w.state {
	case Idle:
		w.started = w.cfg.Now()
		if len(w.cfg.Pool) == 0 {
			w.transition(Done, "", "No images found")
			w.finish()
			break
		}
		w.transition(Loading, "", fmt.Sprintf("%d images to label", len(w.cfg.Pool)))
	case Loading:
		w.load()
	case Embedding:
		if err := w.embed(ctx); err != nil {
			return w.state, err
		}
	case Suggesting:
		w.suggest()
	case AwaitingDecision:
		if err := w.decide(ctx); err != nil {
			return w.state, err
		}
	case Committing:
		if err := w.commit(); err != nil {
			return w.state, err
		}
	case Advancing:
		w.advance()
	}
	return w.state, nil
}

func (w *Workflow) load() {
	path := w.cfg.Pool[w.pos]
	w.current = &Candidate{Path: path, Position: w.pos + 1, Total: len(w.cfg.Pool)}
	w.pending = nil

	if w.cfg.VerifyDecode {
		if err := w.cfg.Verify(path); err != nil {
			w.log.Warn("cannot open image", "path", path, "error", err)
			w.skip(fmt.Sprintf("%s: %v", ReasonUnreadable, err))
			w.transition(Advancing, path, "Failed to open "+filepath.Base(path))
			return
		}
	}
	w.transition(Embedding, path, fmt.Sprintf("Scanning %s with %s", filepath.Base(path), w.cfg.Provider.ID()))
}

func (w *Workflow) embed(ctx context.Context) error {
	c := w.current
	vec, err := embedding.EmbedWithTimeout(ctx, w.cfg.Provider, c.Path, w.cfg.EmbedTimeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		w.log.Warn("no embedding", "path", c.Path, "error", err)
		c.Err = err.Error()
		w.summary.EmbeddingFailures++
		w.transition(AwaitingDecision, c.Path, "No face embedding: "+err.Error())
		return nil
	}

	if err := w.cfg.Index.CheckDimension(vec); err != nil {
		return fmt.Errorf("%s: %w", c.Path, err)
	}
	c.Embedding = vec
	w.transition(Suggesting, c.Path, "")
	return nil
}

func (w *Workflow) suggest() {
	c := w.current
	c.Suggestion = w.cfg.Index.Suggest(c.Embedding, w.cfg.Threshold)

	if c.Suggestion != nil && w.cfg.AutoAccept {
		w.pending = &Assignment{Candidate: c, Label: c.Suggestion.Label, Method: MethodAuto}
		w.transition(Committing, c.Path,
			fmt.Sprintf("Auto-accepted %s (%.3f)", c.Suggestion.Label, c.Suggestion.Score))
		return
	}

	msg := "No match found"
	if c.Suggestion != nil {
		msg = fmt.Sprintf("Suggested %s (%.3f)", c.Suggestion.Label, c.Suggestion.Score)
	}
	w.transition(AwaitingDecision, c.Path, msg)
}

func (w *Workflow) decide(ctx context.Context) error {
	c := w.current
	req := Request{Candidate: *c, Labels: w.cfg.Index.Labels()}

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		req.Attempt = attempt
		d, err := w.cfg.Decider.Decide(ctx, req)
		if errors.Is(err, ErrQuit) {
			w.summary.Quit = true
			w.current = nil
			w.transition(Done, c.Path, "Quit")
			w.finish()
			return nil
		}
		if err != nil {
			return fmt.Errorf("deciding %s: %w", c.Path, err)
		}

		if d.Skip {
			w.skip(ReasonUserSkip)
			w.transition(Advancing, c.Path, "Skipped")
			return nil
		}

		name, err := label.Normalize(d.Label)
		if err != nil {
			w.log.Warn("rejected label", "path", c.Path, "label", d.Label, "attempt", attempt)
			req.Problem = fmt.Sprintf("%q is not a valid label: %v", d.Label, err)
			continue
		}

		w.pending = &Assignment{Candidate: c, Label: name, Method: MethodManual}
		w.transition(Committing, c.Path, "Labeled "+name)
		return nil
	}

	w.skip(ReasonInvalidLabel)
	w.transition(Advancing, c.Path, "Skipped after invalid labels")
	return nil
}

func (w *Workflow) commit() error {
	a := w.pending
	c := a.Candidate

	dest, err := w.cfg.Store.Commit(a.Label, c.Path)
	if err != nil {
		reason := fmt.Sprintf("%s: %v", ReasonCommitFailed, err)
		if errors.Is(err, classstore.ErrPermission) {
			reason = ReasonPermissionDenied
		}
		w.log.Warn("commit failed", "path", c.Path, "label", a.Label, "error", err)
		w.skip(reason)
		w.transition(Advancing, c.Path, "Failed to save: "+err.Error())
		return nil
	}

	absorbed := false
	if c.HasEmbedding() {
		if err := w.cfg.Index.Absorb(a.Label, c.Embedding); err != nil {
			return fmt.Errorf("absorbing %s: %w", c.Path, err)
		}
		absorbed = true
	}

	w.summary.Processed++
	if a.Method == MethodAuto {
		w.summary.AutoAccepted++
	} else {
		w.summary.ManuallyLabeled++
	}
	w.summary.Commits = append(w.summary.Commits, CommitRecord{
		Path:        c.Path,
		Label:       a.Label,
		Destination: dest,
		Method:      a.Method,
		Absorbed:    absorbed,
	})
	w.log.Debug("saved", "path", c.Path, "label", a.Label, "destination", dest, "method", a.Method)
	w.transition(Advancing, c.Path, fmt.Sprintf("Saved to %s/", a.Label))
	return nil
}

func (w *Workflow) advance() {
	path := ""
	if w.current != nil {
		path = w.current.Path
	}
	w.current = nil
	w.pending = nil
	w.pos++

	if w.pos >= len(w.cfg.Pool) {
		w.transition(Done, path, "All images processed.")
		w.finish()
		return
	}
	w.transition(Loading, path, "")
}

func (w *Workflow) skip(reason string) {
	w.summary.Processed++
	w.summary.Skipped++
	w.summary.Skips = append(w.summary.Skips, SkipRecord{Path: w.current.Path, Reason: reason})
}

func (w *Workflow) finish() {
	if f, ok := w.cfg.Decider.(Finisher); ok {
		f.Finish(w.Summary())
	}
}

func (w *Workflow) transition(to State, path, message string) {
	ev := Event{From: w.state, To: to, Path: path, Message: message, Time: w.cfg.Now()}
	w.state = to
	w.log.Debug("transition", "from", ev.From, "to", ev.To, "path", path)
	if w.cfg.OnEvent != nil {
		w.cfg.OnEvent(ev)
	}
}
