package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kozaktomas/face-labeler/internal/workflow"
)

type outcome int

const (
	pending outcome = iota
	accepted
	skipped
	quit
)

// decisionModel asks for one label.
type decisionModel struct {
	req    workflow.Request
	status string
	input  textinput.Model
	result outcome
	label  string
	width  int
}

func newDecisionModel(req workflow.Request, status string) decisionModel {
	ti := textinput.New()
	ti.Placeholder = "Type a label..."
	ti.Prompt = brand.Render("label>") + " "
	ti.CharLimit = 200
	ti.Width = 60
	ti.ShowSuggestions = true
	ti.SetSuggestions(req.Labels)
	if s := req.Candidate.Suggestion; s != nil {
		ti.SetValue(s.Label)
		ti.CursorEnd()
	}
	ti.Focus()

	return decisionModel{req: req, status: status, input: ti}
}

func (m decisionModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m decisionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.result = quit
			return m, tea.Quit
		case tea.KeyCtrlS:
			m.result = skipped
			return m, tea.Quit
		case tea.KeyRight:
			// Right skips once the cursor is already at the end.
			if m.input.Position() >= len([]rune(m.input.Value())) {
				m.result = skipped
				return m, tea.Quit
			}
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil
			}
			m.result = accepted
			m.label = value
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-12)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m decisionModel) View() string {
	c := m.req.Candidate
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", brand.Render(fmt.Sprintf("[%d/%d]", c.Position, c.Total)), filepath.Base(c.Path))
	b.WriteString(subtle.Render(c.Path) + "\n")

	switch {
	case c.Err != "":
		b.WriteString(red.Render("No embedding: "+c.Err) + "\n")
	case c.Suggestion != nil:
		fmt.Fprintf(&b, "Suggestion: %s %s\n", green.Render(c.Suggestion.Label),
			yellow.Render(fmt.Sprintf("(%.3f)", c.Suggestion.Score)))
	default:
		b.WriteString(muted.Render("No match found") + "\n")
	}
	if m.status != "" {
		b.WriteString(muted.Render(m.status) + "\n")
	}
	if m.req.Problem != "" {
		b.WriteString(red.Render(m.req.Problem) + "\n")
	}

	b.WriteString("\n" + m.input.View() + "\n")
	b.WriteString(subtle.Render("enter save · → / ctrl+s skip · tab complete · esc quit"))

	if m.result != pending {
		return ""
	}
	return frame.Render(b.String()) + "\n"
}
