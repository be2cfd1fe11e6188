// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Matching constants
const (
	// DefaultThreshold is the minimum cosine similarity for a suggestion to be offered
	DefaultThreshold = 0.65

	// DefaultCapPerLabel is the maximum number of reference images loaded per label
	DefaultCapPerLabel = 4

	// DefaultHNSWCandidates is how many nearest vectors the hnsw searcher re-scores
	DefaultHNSWCandidates = 32
)

// Processing constants
const (
	// DefaultConcurrency is the number of parallel embedding workers used while building the index
	DefaultConcurrency = 4

	// DefaultEmbedTimeout bounds a single embedding computation
	DefaultEmbedTimeout = 30 * time.Second

	// MaxDecisionAttempts is how many invalid labels a decider may return before the item is skipped
	MaxDecisionAttempts = 3
)

// Preview constants
const (
	// DefaultPreviewSize is the max display size (width or height) of a preview image
	DefaultPreviewSize = 320
)

// ImageExtensions lists the recognized image file extensions (lowercase).
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Provider identifiers
const (
	ProviderHTTP  = "http"
	ProviderPixel = "pixel"
)

// Decider identifiers
const (
	DeciderTUI    = "tui"
	DeciderScript = "script"
	DeciderHTTP   = "http"
	DeciderAuto   = "auto"
)

// Search backend identifiers
const (
	SearchLinear = "linear"
	SearchHNSW   = "hnsw"
)

// Growth policy identifiers
const (
	GrowthUnbounded = "unbounded"
	GrowthCapped    = "capped"
)

// Cache backend identifiers
const (
	CacheNone     = ""
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheMariaDB  = "mariadb"
)

// Web decider constants
const (
	// EventChannelBuffer is the buffer size of each SSE listener channel
	EventChannelBuffer = 100

	// DecisionBodyLimit caps the size of a posted decision
	DecisionBodyLimit = 64 << 10
)
