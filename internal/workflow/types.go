package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/face-labeler/internal/index"
)

// ErrQuit is returned by a Decider to end the run before the pool is
// exhausted. The current item is left unprocessed.
var ErrQuit = errors.New("quit requested")

// Method records how an assignment's label was chosen.
type Method string

const (
	MethodAuto   Method = "auto"
	MethodManual Method = "manual"
)

// Candidate is one pool image moving through the workflow.
type Candidate struct {
	Path       string            `json:"path"`
	Position   int               `json:"position"` // 1-based
	Total      int               `json:"total"`
	Embedding  []float32         `json:"-"`
	Err        string            `json:"embedding_error,omitempty"` // why the embedding is absent
	Suggestion *index.Suggestion `json:"suggestion,omitempty"`
}

// HasEmbedding reports whether the provider produced a vector.
func (c *Candidate) HasEmbedding() bool { return len(c.Embedding) > 0 }

// Assignment is a candidate with its confirmed label.
type Assignment struct {
	Candidate *Candidate
	Label     string
	Method    Method
}

// Request is what a Decider is asked about.
type Request struct {
	Candidate Candidate `json:"candidate"`
	Labels    []string  `json:"labels"`            // known labels, sorted
	Attempt   int       `json:"attempt"`           // 1-based
	Problem   string    `json:"problem,omitempty"` // why the previous answer was rejected
}

// Decision is a Decider's answer: a raw label or a skip.
type Decision struct {
	Label string `json:"label,omitempty"`
	Skip  bool   `json:"skip,omitempty"`
}

// Accept builds a decision for the raw label.
func Accept(label string) Decision { return Decision{Label: label} }

// SkipDecision builds a skip decision.
func SkipDecision() Decision { return Decision{Skip: true} }

// Decider supplies labels for candidates the workflow cannot settle alone.
type Decider interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// Finisher is implemented by deciders that want the final summary.
type Finisher interface {
	Finish(summary Summary)
}

// Matcher is the part of the reference index the workflow uses.
type Matcher interface {
	Suggest(query []float32, threshold float64) *index.Suggestion
	Absorb(label string, vec []float32) error
	CheckDimension(vec []float32) error
	Labels() []string
}

// Committer places an image into the class store.
type Committer interface {
	Commit(label, src string) (string, error)
}

// SkipRecord explains why an item was not committed.
type SkipRecord struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// CommitRecord describes a committed item.
type CommitRecord struct {
	Path        string `json:"path"`
	Label       string `json:"label"`
	Destination string `json:"destination"`
	Method      Method `json:"method"`
	Absorbed    bool   `json:"absorbed"`
}

// Summary reports a run. Processed always equals
// AutoAccepted + ManuallyLabeled + Skipped.
type Summary struct {
	Total             int            `json:"total"`
	Processed         int            `json:"processed"`
	AutoAccepted      int            `json:"auto_accepted"`
	ManuallyLabeled   int            `json:"manually_labeled"`
	Skipped           int            `json:"skipped"`
	EmbeddingFailures int            `json:"embedding_failures"`
	Quit              bool           `json:"quit,omitempty"`
	Skips             []SkipRecord   `json:"skips,omitempty"`
	Commits           []CommitRecord `json:"commits,omitempty"`
	Duration          time.Duration  `json:"duration"`
}

// Reconciles reports whether the counters add up.
func (s Summary) Reconciles() bool {
	return s.Processed == s.AutoAccepted+s.ManuallyLabeled+s.Skipped
}

// Event is emitted on every state transition.
type Event struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}
