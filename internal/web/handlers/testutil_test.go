package handlers

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-labeler/internal/workflow"
)

func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var body map[string]string
	parseJSONResponse(t, recorder, &body)
	if body["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, body["error"])
	}
}

// writePNG writes a small gradient image and returns its path.
func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := range 48 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	return path
}

type decideResult struct {
	decision workflow.Decision
	err      error
}

// park starts a Decide call in the background and waits until it is pending.
func park(t *testing.T, ctx context.Context, s *Session, req workflow.Request) (*Pending, <-chan decideResult) {
	t.Helper()
	out := make(chan decideResult, 1)
	go func() {
		d, err := s.Decide(ctx, req)
		out <- decideResult{d, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := s.Current(); p != nil {
			return p, out
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("decision never became pending")
	return nil, nil
}

func waitResult(t *testing.T, out <-chan decideResult) decideResult {
	t.Helper()
	select {
	case r := <-out:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Decide did not return")
		return decideResult{}
	}
}

func testRequest(path string) workflow.Request {
	return workflow.Request{
		Candidate: workflow.Candidate{Path: path, Position: 1, Total: 3},
		Labels:    []string{"alice", "bob"},
		Attempt:   1,
	}
}
