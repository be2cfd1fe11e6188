// Package decider provides non-interactive Deciders for the assignment
// workflow: a scripted decisions file and an accept-the-suggestion mode.
package decider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/face-labeler/internal/workflow"
	"gopkg.in/yaml.v3"
)

// ErrQuit ends a run early; deciders return it from Decide.
var ErrQuit = workflow.ErrQuit

// Fallbacks for images a script does not mention.
const (
	FallbackSuggestion = "suggestion" // accept the suggestion, skip when there is none
	FallbackSkip       = "skip"
	FallbackQuit       = "quit"
)

// Auto accepts the suggestion when there is one and skips otherwise.
type Auto struct{}

func (Auto) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	if err := ctx.Err(); err != nil {
		return workflow.Decision{}, err
	}
	if s := req.Candidate.Suggestion; s != nil {
		return workflow.Accept(s.Label), nil
	}
	return workflow.SkipDecision(), nil
}

// ScriptEntry is one line of a decisions file.
type ScriptEntry struct {
	File  string `yaml:"file"` // base name or full path
	Label string `yaml:"label,omitempty"`
	Skip  bool   `yaml:"skip,omitempty"`
	Quit  bool   `yaml:"quit,omitempty"`
}

// ScriptFile is the YAML decisions file format.
type ScriptFile struct {
	Default   string        `yaml:"default"`
	Decisions []ScriptEntry `yaml:"decisions"`
}

// Script answers from a prepared list of decisions, keyed by file.
type Script struct {
	mu       sync.Mutex
	fallback string
	byPath   map[string]ScriptEntry
	byBase   map[string]ScriptEntry
	used     map[string]bool
}

// LoadScript reads a YAML decisions file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied decisions file
	if err != nil {
		return nil, fmt.Errorf("reading decisions file: %w", err)
	}
	var f ScriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing decisions file %s: %w", path, err)
	}
	return NewScript(f)
}

// NewScript builds a Script from decoded entries.
func NewScript(f ScriptFile) (*Script, error) {
	fallback := f.Default
	if fallback == "" {
		fallback = FallbackSkip
	}
	switch fallback {
	case FallbackSuggestion, FallbackSkip, FallbackQuit:
	default:
		return nil, fmt.Errorf("unknown default %q (want %s, %s or %s)", fallback, FallbackSuggestion, FallbackSkip, FallbackQuit)
	}

	s := &Script{
		fallback: fallback,
		byPath:   make(map[string]ScriptEntry),
		byBase:   make(map[string]ScriptEntry),
		used:     make(map[string]bool),
	}
	var errs []error
	for i, e := range f.Decisions {
		if e.File == "" {
			errs = append(errs, fmt.Errorf("decision %d: file is required", i+1))
			continue
		}
		if e.Label == "" && !e.Skip && !e.Quit {
			errs = append(errs, fmt.Errorf("decision %d (%s): needs label, skip or quit", i+1, e.File))
			continue
		}
		if filepath.Base(e.File) == e.File {
			s.byBase[e.File] = e
		} else {
			s.byPath[filepath.Clean(e.File)] = e
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func (s *Script) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	if err := ctx.Err(); err != nil {
		return workflow.Decision{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := req.Candidate.Path
	e, ok := s.byPath[filepath.Clean(path)]
	if !ok {
		e, ok = s.byBase[filepath.Base(path)]
	}
	// A rejected label would be returned again; fall back instead of looping.
	if ok && req.Attempt <= 1 {
		s.used[path] = true
		switch {
		case e.Quit:
			return workflow.Decision{}, ErrQuit
		case e.Skip:
			return workflow.SkipDecision(), nil
		default:
			return workflow.Accept(e.Label), nil
		}
	}

	switch s.fallback {
	case FallbackQuit:
		return workflow.Decision{}, ErrQuit
	case FallbackSuggestion:
		return Auto{}.Decide(ctx, req)
	default:
		return workflow.SkipDecision(), nil
	}
}

// Used returns how many scripted entries matched an image.
func (s *Script) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}
