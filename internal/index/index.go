// Package index keeps per-label reference embeddings in memory and answers
// "which known label is this face closest to".
package index

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kozaktomas/face-labeler/internal/constants"
)

// ErrDimensionMismatch is a fatal configuration error: every vector in one
// run must share a length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Suggestion is the best-matching label for a query and its cosine score.
type Suggestion struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Stats describes the index contents.
type Stats struct {
	Labels       int            `json:"labels"`
	Vectors      int            `json:"vectors"`
	PerLabel     map[string]int `json:"per_label"`
	Appended     int            `json:"appended"`       // absorbed this session
	SkippedByCap int            `json:"skipped_by_cap"` // absorbs dropped by the capped growth policy
	Dim          int            `json:"dim"`
}

// Options configures a ReferenceIndex.
type Options struct {
	Cap            int    // reference images loaded per label
	Growth         string // constants.GrowthUnbounded | constants.GrowthCapped
	Search         string // constants.SearchLinear | constants.SearchHNSW
	HNSWCandidates int
	Concurrency    int  // build workers
	ShowProgress   bool // progress bar on stderr during Build
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Cap <= 0 {
		o.Cap = constants.DefaultCapPerLabel
	}
	if o.Growth == "" {
		o.Growth = constants.GrowthUnbounded
	}
	if o.Search == "" {
		o.Search = constants.SearchLinear
	}
	if o.HNSWCandidates <= 0 {
		o.HNSWCandidates = constants.DefaultHNSWCandidates
	}
	if o.Concurrency <= 0 {
		o.Concurrency = constants.DefaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// ref addresses one stored vector.
type ref struct {
	label string
	pos   int // insertion order within the label
}

// searcher narrows the set of vectors Suggest has to score exactly.
// ok=false means "score everything".
type searcher interface {
	add(r ref, vec []float32)
	candidates(query []float32) (refs []ref, ok bool)
	reset()
}

// linearSearcher never narrows: every vector is scored.
type linearSearcher struct{}

func (linearSearcher) add(ref, []float32)                 {}
func (linearSearcher) candidates([]float32) ([]ref, bool) { return nil, false }
func (linearSearcher) reset()                             {}

// ReferenceIndex maps labels to their reference embeddings. It is owned by a
// single workflow and is not safe for concurrent mutation.
type ReferenceIndex struct {
	opts   Options
	labels []string // sorted
	sets   map[string][][]float32
	dim    int // 0 until the first vector

	search       searcher
	appended     int
	skippedByCap int
}

// New returns an empty index.
func New(opts Options) (*ReferenceIndex, error) {
	opts = opts.withDefaults()

	var s searcher
	switch opts.Search {
	case constants.SearchLinear:
		s = linearSearcher{}
	case constants.SearchHNSW:
		s = newHNSWSearcher(opts.HNSWCandidates)
	default:
		return nil, fmt.Errorf("unknown search backend %q", opts.Search)
	}
	switch opts.Growth {
	case constants.GrowthUnbounded, constants.GrowthCapped:
	default:
		return nil, fmt.Errorf("unknown growth policy %q", opts.Growth)
	}

	return &ReferenceIndex{
		opts:   opts,
		sets:   make(map[string][][]float32),
		search: s,
	}, nil
}

// CheckDimension reports ErrDimensionMismatch when vec cannot be compared
// with the vectors already stored.
func (idx *ReferenceIndex) CheckDimension(vec []float32) error {
	if idx.dim != 0 && len(vec) != idx.dim {
		return fmt.Errorf("%w: index has %d, got %d", ErrDimensionMismatch, idx.dim, len(vec))
	}
	return nil
}

// Dim returns the shared vector length, or 0 for an empty index.
func (idx *ReferenceIndex) Dim() int { return idx.dim }

// Labels returns the known labels in lexicographic order.
func (idx *ReferenceIndex) Labels() []string { return slices.Clone(idx.labels) }

// Len returns the total number of stored vectors.
func (idx *ReferenceIndex) Len() int {
	n := 0
	for _, set := range idx.sets {
		n += len(set)
	}
	return n
}

// Suggest returns the label of the single most similar stored vector, or
// nil when the index is empty or the best score is below threshold. A score
// equal to threshold is accepted. Ties go to the earlier label in
// lexicographic order, then to the earlier inserted vector. Zero vectors,
// queried or stored, never produce a suggestion, even at threshold -1.
func (idx *ReferenceIndex) Suggest(query []float32, threshold float64) *Suggestion {
	if idx.Len() == 0 || len(query) == 0 || isZero(query) {
		return nil
	}

	var best *Suggestion
	var bestRef ref
	consider := func(r ref) {
		stored := idx.sets[r.label][r.pos]
		if isZero(stored) {
			return
		}
		score := CosineSimilarity(query, stored)
		if best == nil || score > best.Score || (score == best.Score && before(r, bestRef)) {
			best = &Suggestion{Label: r.label, Score: score}
			bestRef = r
		}
	}

	if refs, ok := idx.search.candidates(query); ok && len(refs) > 0 {
		for _, r := range refs {
			consider(r)
		}
	} else {
		for _, label := range idx.labels {
			for pos := range idx.sets[label] {
				consider(ref{label: label, pos: pos})
			}
		}
	}

	if best == nil || best.Score < threshold {
		return nil
	}
	return best
}

func before(a, b ref) bool {
	if a.label != b.label {
		return a.label < b.label
	}
	return a.pos < b.pos
}

// Absorb adds a confirmed embedding to label's reference set, creating the
// set when the label is new. Under the capped growth policy a label that
// already holds Cap vectors keeps its set unchanged.
func (idx *ReferenceIndex) Absorb(label string, vec []float32) error {
	return idx.insert(label, vec, true)
}

func (idx *ReferenceIndex) insert(label string, vec []float32, absorbed bool) error {
	if len(vec) == 0 {
		return errors.New("cannot absorb an empty embedding")
	}
	if err := idx.CheckDimension(vec); err != nil {
		return err
	}

	set, known := idx.sets[label]
	if absorbed && idx.opts.Growth == constants.GrowthCapped && len(set) >= idx.opts.Cap {
		idx.skippedByCap++
		idx.opts.Logger.Debug("reference set full, not absorbing", "label", label, "cap", idx.opts.Cap)
		return nil
	}

	if !known {
		i, _ := slices.BinarySearch(idx.labels, label)
		idx.labels = slices.Insert(idx.labels, i, label)
	}
	if idx.dim == 0 {
		idx.dim = len(vec)
	}

	stored := slices.Clone(vec)
	idx.sets[label] = append(set, stored)
	idx.search.add(ref{label: label, pos: len(set)}, stored)
	if absorbed {
		idx.appended++
	}
	return nil
}

// Reset drops every reference set.
func (idx *ReferenceIndex) Reset() {
	idx.labels = nil
	idx.sets = make(map[string][][]float32)
	idx.dim = 0
	idx.appended = 0
	idx.skippedByCap = 0
	idx.search.reset()
}

// Stats returns a snapshot of the index contents.
func (idx *ReferenceIndex) Stats() Stats {
	st := Stats{
		Labels:       len(idx.labels),
		PerLabel:     make(map[string]int, len(idx.labels)),
		Appended:     idx.appended,
		SkippedByCap: idx.skippedByCap,
		Dim:          idx.dim,
	}
	for _, label := range idx.labels {
		n := len(idx.sets[label])
		st.PerLabel[label] = n
		st.Vectors += n
	}
	return st
}
