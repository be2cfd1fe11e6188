package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kozaktomas/face-labeler/internal/constants"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths     PathsConfig     `yaml:"paths" toml:"paths"`
	Match     MatchConfig     `yaml:"match" toml:"match"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Decider   DeciderConfig   `yaml:"decider" toml:"decider"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

type PathsConfig struct {
	Pool  string `yaml:"pool" toml:"pool"`   // unlabeled pool (detected face crops)
	Store string `yaml:"store" toml:"store"` // class store root, one directory per label
}

type MatchConfig struct {
	Threshold      float64 `yaml:"threshold" toml:"threshold"`             // cosine similarity in [-1, 1], defaults to 0.65
	CapPerLabel    int     `yaml:"cap_per_label" toml:"cap_per_label"`     // reference images loaded per label, defaults to 4
	AutoAccept     bool    `yaml:"auto_accept" toml:"auto_accept"`         // commit suggestions without asking
	Growth         string  `yaml:"growth" toml:"growth"`                   // unbounded | capped
	Search         string  `yaml:"search" toml:"search"`                   // linear | hnsw
	HNSWCandidates int     `yaml:"hnsw_candidates" toml:"hnsw_candidates"` // vectors re-scored by the hnsw searcher
}

type EmbeddingConfig struct {
	Provider    string        `yaml:"provider" toml:"provider"` // http | pixel
	URL         string        `yaml:"url" toml:"url"`           // defaults to http://localhost:8000
	Model       string        `yaml:"model" toml:"model"`       // reported to the server, part of the cache key
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`
	Concurrency int           `yaml:"concurrency" toml:"concurrency"` // index build workers
}

type DatabaseConfig struct {
	Backend      string `yaml:"backend" toml:"backend"`               // "" (disabled) | sqlite | postgres | mariadb
	Path         string `yaml:"path" toml:"path"`                     // sqlite file
	URL          string `yaml:"url" toml:"url"`                       // PostgreSQL connection URL
	DSN          string `yaml:"dsn" toml:"dsn"`                       // MariaDB DSN (e.g., user:pass@tcp(host:3306)/db)
	MaxOpenConns int    `yaml:"max_open_conns" toml:"max_open_conns"` // Maximum open connections (default 10)
	MaxIdleConns int    `yaml:"max_idle_conns" toml:"max_idle_conns"` // Maximum idle connections (default 2)
}

type DeciderConfig struct {
	Kind          string `yaml:"kind" toml:"kind"` // tui | script | http | auto
	DecisionsFile string `yaml:"decisions_file" toml:"decisions_file"`
	Listen        string `yaml:"listen" toml:"listen"` // http decider address
	PreviewSize   int    `yaml:"preview_size" toml:"preview_size"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"` // debug | info | warn | error
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a bool ("1", "true", "yes").
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return strings.EqualFold(s, "yes")
}

// envDuration reads an environment variable as a time.Duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Load builds the configuration from defaults and environment variables.
func Load() *Config {
	return &Config{
		Paths: PathsConfig{
			Pool:  envString("FACE_LABELER_POOL", "detected"),
			Store: envString("FACE_LABELER_STORE", "identified"),
		},
		Match: MatchConfig{
			Threshold:      envFloat("FACE_LABELER_THRESHOLD", constants.DefaultThreshold),
			CapPerLabel:    envInt("FACE_LABELER_CAP", constants.DefaultCapPerLabel),
			AutoAccept:     envBool("FACE_LABELER_AUTO_ACCEPT", false),
			Growth:         envString("FACE_LABELER_GROWTH", constants.GrowthUnbounded),
			Search:         envString("FACE_LABELER_SEARCH", constants.SearchLinear),
			HNSWCandidates: envInt("FACE_LABELER_HNSW_CANDIDATES", constants.DefaultHNSWCandidates),
		},
		Embedding: EmbeddingConfig{
			Provider:    envString("EMBEDDING_PROVIDER", constants.ProviderHTTP),
			URL:         os.Getenv("EMBEDDING_URL"),
			Model:       envString("EMBEDDING_MODEL", "faces"),
			Timeout:     envDuration("EMBEDDING_TIMEOUT", constants.DefaultEmbedTimeout),
			Concurrency: envInt("EMBEDDING_CONCURRENCY", constants.DefaultConcurrency),
		},
		Database: DatabaseConfig{
			Backend:      os.Getenv("EMBEDDING_CACHE"),
			Path:         envString("EMBEDDING_CACHE_PATH", "embeddings.db"),
			URL:          os.Getenv("DATABASE_URL"),
			DSN:          os.Getenv("MARIADB_DSN"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Decider: DeciderConfig{
			Kind:          os.Getenv("FACE_LABELER_DECIDER"),
			DecisionsFile: os.Getenv("FACE_LABELER_DECISIONS"),
			Listen:        envString("FACE_LABELER_LISTEN", "127.0.0.1:8085"),
			PreviewSize:   envInt("FACE_LABELER_PREVIEW_SIZE", constants.DefaultPreviewSize),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
		},
	}
}

// LoadFile overlays a YAML (.yaml, .yml) or TOML (.toml) file onto c.
// Keys missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by the operator
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

// Validate checks the run's read-only knobs. All failures wrap ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	if c.Paths.Pool == "" {
		errs = append(errs, errors.New("unlabeled pool directory is required"))
	}
	if c.Paths.Store == "" {
		errs = append(errs, errors.New("class store directory is required"))
	}
	if c.Match.Threshold < -1 || c.Match.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %.3f is outside [-1, 1]", c.Match.Threshold))
	}
	if c.Match.CapPerLabel < 1 {
		errs = append(errs, fmt.Errorf("cap per label must be at least 1, got %d", c.Match.CapPerLabel))
	}
	if !oneOf(c.Match.Growth, constants.GrowthUnbounded, constants.GrowthCapped) {
		errs = append(errs, fmt.Errorf("unknown growth policy %q", c.Match.Growth))
	}
	if !oneOf(c.Match.Search, constants.SearchLinear, constants.SearchHNSW) {
		errs = append(errs, fmt.Errorf("unknown search backend %q", c.Match.Search))
	}
	if !oneOf(c.Embedding.Provider, constants.ProviderHTTP, constants.ProviderPixel) {
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Timeout <= 0 {
		errs = append(errs, errors.New("embedding timeout must be positive"))
	}
	if c.Embedding.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Embedding.Concurrency))
	}
	if !oneOf(c.Database.Backend, constants.CacheNone, constants.CacheSQLite, constants.CachePostgres, constants.CacheMariaDB) {
		errs = append(errs, fmt.Errorf("unknown embedding cache backend %q", c.Database.Backend))
	}
	if c.Decider.Kind != "" && !oneOf(c.Decider.Kind, constants.DeciderTUI, constants.DeciderScript, constants.DeciderHTTP, constants.DeciderAuto) {
		errs = append(errs, fmt.Errorf("unknown decider %q", c.Decider.Kind))
	}
	if c.Decider.Kind == constants.DeciderScript && c.Decider.DecisionsFile == "" {
		errs = append(errs, errors.New("script decider requires a decisions file"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
