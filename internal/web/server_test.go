package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-labeler/internal/web/handlers"
)

func TestRoutes(t *testing.T) {
	session := handlers.NewSession(nil)
	srv := NewServer("127.0.0.1:0", handlers.NewHandler(session, 0, nil), nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/state", http.StatusOK},
		{http.MethodGet, "/api/v1/candidate", http.StatusNoContent},
		{http.MethodGet, "/api/v1/candidate/preview", http.StatusNotFound},
		{http.MethodGet, "/api/v1/summary", http.StatusConflict},
		{http.MethodPost, "/api/v1/decision", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/decision", http.StatusMethodNotAllowed},
		{http.MethodGet, "/", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader("")))
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestIndexPage(t *testing.T) {
	srv := NewServer("127.0.0.1:0", handlers.NewHandler(handlers.NewSession(nil), 0, nil), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "/api/v1/events") {
		t.Error("expected the page to subscribe to the event stream")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}
