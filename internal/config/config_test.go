package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"FACE_LABELER_THRESHOLD", "FACE_LABELER_CAP", "FACE_LABELER_AUTO_ACCEPT",
		"EMBEDDING_PROVIDER", "EMBEDDING_TIMEOUT", "FACE_LABELER_GROWTH",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Match.Threshold != 0.65 {
		t.Errorf("expected default threshold 0.65, got %f", cfg.Match.Threshold)
	}
	if cfg.Match.CapPerLabel != 4 {
		t.Errorf("expected default cap 4, got %d", cfg.Match.CapPerLabel)
	}
	if cfg.Match.AutoAccept {
		t.Error("expected auto-accept to be disabled by default")
	}
	if cfg.Embedding.Provider != "http" {
		t.Errorf("expected default provider http, got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Embedding.Timeout)
	}
	if cfg.Match.Growth != "unbounded" {
		t.Errorf("expected default growth unbounded, got %q", cfg.Match.Growth)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("FACE_LABELER_THRESHOLD", "0.8")
	t.Setenv("FACE_LABELER_CAP", "7")
	t.Setenv("FACE_LABELER_AUTO_ACCEPT", "true")
	t.Setenv("EMBEDDING_TIMEOUT", "5s")
	t.Setenv("EMBEDDING_PROVIDER", "pixel")

	cfg := Load()

	if cfg.Match.Threshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %f", cfg.Match.Threshold)
	}
	if cfg.Match.CapPerLabel != 7 {
		t.Errorf("expected cap 7, got %d", cfg.Match.CapPerLabel)
	}
	if !cfg.Match.AutoAccept {
		t.Error("expected auto-accept enabled")
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Embedding.Timeout)
	}
	if cfg.Embedding.Provider != "pixel" {
		t.Errorf("expected provider pixel, got %q", cfg.Embedding.Provider)
	}
}

func TestEnvInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "abc")
	if got := envInt("TEST_ENV_INT", 3); got != 3 {
		t.Errorf("expected fallback 3, got %d", got)
	}
	t.Setenv("TEST_ENV_INT", "-2")
	if got := envInt("TEST_ENV_INT", 3); got != 3 {
		t.Errorf("expected fallback 3 for negative value, got %d", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"threshold lower bound", func(c *Config) { c.Match.Threshold = -1 }, true},
		{"threshold upper bound", func(c *Config) { c.Match.Threshold = 1 }, true},
		{"threshold too high", func(c *Config) { c.Match.Threshold = 1.01 }, false},
		{"threshold too low", func(c *Config) { c.Match.Threshold = -1.5 }, false},
		{"zero cap", func(c *Config) { c.Match.CapPerLabel = 0 }, false},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "clip" }, false},
		{"unknown growth", func(c *Config) { c.Match.Growth = "rotate" }, false},
		{"unknown search", func(c *Config) { c.Match.Search = "faiss" }, false},
		{"unknown cache", func(c *Config) { c.Database.Backend = "redis" }, false},
		{"script without file", func(c *Config) { c.Decider.Kind = "script" }, false},
		{"script with file", func(c *Config) {
			c.Decider.Kind = "script"
			c.Decider.DecisionsFile = "decisions.yaml"
		}, true},
		{"missing pool", func(c *Config) { c.Paths.Pool = "" }, false},
		{"zero timeout", func(c *Config) { c.Embedding.Timeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			cfg.Embedding.Provider = "http"
			cfg.Database.Backend = ""
			cfg.Decider.Kind = ""
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("expected error to wrap ErrInvalid, got %v", err)
				}
			}
		})
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labeler.yaml")
	content := `
match:
  threshold: 0.7
  auto_accept: true
embedding:
  timeout: 12s
decider:
  kind: script
  decisions_file: decisions.yaml
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	cfg.Match.CapPerLabel = 9
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Match.Threshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %f", cfg.Match.Threshold)
	}
	if !cfg.Match.AutoAccept {
		t.Error("expected auto-accept from file")
	}
	if cfg.Match.CapPerLabel != 9 {
		t.Errorf("keys missing from the file must keep their value, got cap %d", cfg.Match.CapPerLabel)
	}
	if cfg.Embedding.Timeout != 12*time.Second {
		t.Errorf("expected timeout 12s, got %v", cfg.Embedding.Timeout)
	}
	if cfg.Decider.Kind != "script" || cfg.Decider.DecisionsFile != "decisions.yaml" {
		t.Errorf("unexpected decider config: %+v", cfg.Decider)
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labeler.toml")
	content := `
[paths]
pool = "/data/detected"
store = "/data/identified"

[match]
cap_per_label = 6
search = "hnsw"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Pool != "/data/detected" || cfg.Paths.Store != "/data/identified" {
		t.Errorf("unexpected paths: %+v", cfg.Paths)
	}
	if cfg.Match.CapPerLabel != 6 {
		t.Errorf("expected cap 6, got %d", cfg.Match.CapPerLabel)
	}
	if cfg.Match.Search != "hnsw" {
		t.Errorf("expected search hnsw, got %q", cfg.Match.Search)
	}
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labeler.ini")
	if err := os.WriteFile(path, []byte("x=1"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := Load().LoadFile(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if err := Load().LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
