package decider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-labeler/internal/index"
	"github.com/kozaktomas/face-labeler/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(path string, suggestion *index.Suggestion) workflow.Request {
	return workflow.Request{
		Candidate: workflow.Candidate{Path: path, Suggestion: suggestion},
		Attempt:   1,
	}
}

func TestAuto(t *testing.T) {
	ctx := context.Background()

	d, err := Auto{}.Decide(ctx, request("a.jpg", &index.Suggestion{Label: "alice", Score: 0.9}))
	require.NoError(t, err)
	assert.Equal(t, workflow.Accept("alice"), d)

	d, err = Auto{}.Decide(ctx, request("a.jpg", nil))
	require.NoError(t, err)
	assert.True(t, d.Skip)
}

const decisionsYAML = `
default: suggestion
decisions:
  - file: a.jpg
    label: Alice
  - file: /pool/sub/b.jpg
    skip: true
  - file: c.jpg
    quit: true
`

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(decisionsYAML), 0o644))

	s, err := LoadScript(path)
	require.NoError(t, err)
	ctx := context.Background()

	d, err := s.Decide(ctx, request("/pool/a.jpg", nil))
	require.NoError(t, err)
	assert.Equal(t, "Alice", d.Label)

	d, err = s.Decide(ctx, request("/pool/sub/b.jpg", &index.Suggestion{Label: "bob"}))
	require.NoError(t, err)
	assert.True(t, d.Skip, "full path entry wins over the suggestion")

	// Same base name elsewhere is not matched by a full-path entry.
	d, err = s.Decide(ctx, request("/pool/other/b.jpg", &index.Suggestion{Label: "bob"}))
	require.NoError(t, err)
	assert.Equal(t, "bob", d.Label, "falls back to the suggestion")

	_, err = s.Decide(ctx, request("/pool/c.jpg", nil))
	assert.ErrorIs(t, err, ErrQuit)

	assert.Equal(t, 3, s.Used())
}

func TestScript_RetryFallsBack(t *testing.T) {
	s, err := NewScript(ScriptFile{Decisions: []ScriptEntry{{File: "a.jpg", Label: "???"}}})
	require.NoError(t, err)

	req := request("a.jpg", nil)
	req.Attempt = 2
	d, err := s.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d.Skip)
}

func TestNewScript_Validation(t *testing.T) {
	tests := []struct {
		name string
		file ScriptFile
	}{
		{"bad default", ScriptFile{Default: "maybe"}},
		{"missing file", ScriptFile{Decisions: []ScriptEntry{{Label: "x"}}}},
		{"no action", ScriptFile{Decisions: []ScriptEntry{{File: "a.jpg"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScript(tt.file)
			assert.Error(t, err)
		})
	}
}

func TestScript_QuitFallback(t *testing.T) {
	s, err := NewScript(ScriptFile{Default: FallbackQuit})
	require.NoError(t, err)
	_, err = s.Decide(context.Background(), request("x.jpg", nil))
	assert.ErrorIs(t, err, ErrQuit)
}

func TestLoadScript_Errors(t *testing.T) {
	_, err := LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("decisions: [oops"), 0o644))
	_, err = LoadScript(path)
	assert.Error(t, err)
}
