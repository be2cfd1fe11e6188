package handlers

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-labeler/internal/workflow"
)

var (
	// ErrNoPending means no candidate is waiting for a decision.
	ErrNoPending = errors.New("no decision pending")
	// ErrStale means the decision targets a candidate that is no longer pending.
	ErrStale = errors.New("decision does not match the pending candidate")
)

type reply struct {
	decision workflow.Decision
	err      error
}

// Pending is a candidate waiting for a browser decision.
type Pending struct {
	ID      string           `json:"id"`
	Request workflow.Request `json:"request"`

	reply chan reply
}

// Snapshot is the session state served to clients.
type Snapshot struct {
	Pending *Pending          `json:"pending,omitempty"`
	Status  string            `json:"status,omitempty"`
	Done    bool              `json:"done"`
	Summary *workflow.Summary `json:"summary,omitempty"`
}

// Session bridges the workflow's Decider calls to HTTP requests: Decide
// parks the request until a client posts an answer.
type Session struct {
	EventBroadcaster

	log *slog.Logger

	mu      sync.Mutex
	pending *Pending
	status  string
	summary *workflow.Summary
	done    chan struct{}
}

// NewSession creates an idle session.
func NewSession(log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{log: log, done: make(chan struct{})}
}

// Decide publishes req and blocks until a client resolves it or ctx ends.
func (s *Session) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	p := &Pending{ID: uuid.NewString(), Request: req, reply: make(chan reply, 1)}

	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
	s.SendEvent(Event{Type: EventCandidate, Data: p})

	select {
	case r := <-p.reply:
		return r.decision, r.err
	case <-ctx.Done():
		s.mu.Lock()
		if s.pending == p {
			s.pending = nil
		}
		s.mu.Unlock()
		return workflow.Decision{}, ctx.Err()
	}
}

// Resolve answers the pending candidate. An empty id matches any pending
// candidate; quit ends the run.
func (s *Session) Resolve(id string, d workflow.Decision, quit bool) error {
	s.mu.Lock()
	p := s.pending
	if p == nil {
		s.mu.Unlock()
		return ErrNoPending
	}
	if id != "" && id != p.ID {
		s.mu.Unlock()
		return ErrStale
	}
	s.pending = nil
	s.mu.Unlock()

	r := reply{decision: d}
	if quit {
		r = reply{err: workflow.ErrQuit}
	}
	p.reply <- r
	s.log.Debug("decision received", "id", p.ID, "label", sanitizeForLog(d.Label), "skip", d.Skip, "quit", quit)
	return nil
}

// Current returns the pending candidate, or nil.
func (s *Session) Current() *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Observe forwards workflow transitions to listeners.
func (s *Session) Observe(ev workflow.Event) {
	if ev.Message == "" {
		return
	}
	s.mu.Lock()
	s.status = ev.Message
	s.mu.Unlock()
	s.SendEvent(Event{Type: EventStatus, Message: ev.Message, Data: ev})
}

// Finish records the final summary and wakes Done waiters.
func (s *Session) Finish(summary workflow.Summary) {
	s.mu.Lock()
	if s.summary != nil {
		s.mu.Unlock()
		return
	}
	s.summary = &summary
	s.pending = nil
	s.mu.Unlock()

	s.SendEvent(Event{Type: EventDone, Message: "All images processed.", Data: summary})
	close(s.done)
}

// Done is closed once the run has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Pending: s.pending,
		Status:  s.status,
		Done:    s.summary != nil,
		Summary: s.summary,
	}
}
