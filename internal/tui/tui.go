// Package tui is the interactive terminal decider.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kozaktomas/face-labeler/internal/workflow"
)

// Decider prompts for each label on the terminal.
type Decider struct {
	in  io.Reader
	out io.Writer

	mu     sync.Mutex
	status string
}

// New returns a terminal decider on stdin/stdout.
func New() *Decider {
	return &Decider{in: os.Stdin, out: os.Stdout}
}

// NewWithIO returns a decider bound to the given streams.
func NewWithIO(in io.Reader, out io.Writer) *Decider {
	return &Decider{in: in, out: out}
}

// Observe records workflow status messages shown above the prompt.
func (d *Decider) Observe(ev workflow.Event) {
	if ev.Message == "" {
		return
	}
	d.mu.Lock()
	d.status = ev.Message
	d.mu.Unlock()
}

func (d *Decider) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	d.mu.Lock()
	status := d.status
	d.mu.Unlock()

	p := tea.NewProgram(newDecisionModel(req, status),
		tea.WithContext(ctx),
		tea.WithInput(d.in),
		tea.WithOutput(d.out),
	)
	final, err := p.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return workflow.Decision{}, ctxErr
		}
		return workflow.Decision{}, fmt.Errorf("terminal prompt: %w", err)
	}

	m, ok := final.(decisionModel)
	if !ok {
		return workflow.Decision{}, errors.New("terminal prompt: unexpected model")
	}
	return m.decision()
}

func (m decisionModel) decision() (workflow.Decision, error) {
	switch m.result {
	case accepted:
		return workflow.Accept(m.label), nil
	case skipped:
		return workflow.SkipDecision(), nil
	default:
		return workflow.Decision{}, workflow.ErrQuit
	}
}

// Finish prints the closing message.
func (d *Decider) Finish(s workflow.Summary) {
	msg := "All images processed."
	if s.Quit {
		msg = "Stopped."
	}
	if s.Total == 0 {
		msg = "No images found."
	}
	fmt.Fprintln(d.out, brand.Render(msg)+" "+muted.Render(
		fmt.Sprintf("%d processed, %d labeled, %d auto, %d skipped", s.Processed, s.ManuallyLabeled, s.AutoAccepted, s.Skipped)))
}
