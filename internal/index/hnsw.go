package index

import (
	"sync"

	"github.com/coder/hnsw"
)

// HNSW graph parameters for face embeddings.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	hnswMaxNeighbors = 16

	// hnswEfSearch is the search candidate pool size.
	hnswEfSearch = 100
)

// hnswSearcher retrieves approximate nearest neighbours from an HNSW graph.
// The index re-scores them exactly, so only recall is approximate.
type hnswSearcher struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int64]
	idToRef map[int64]ref // maps HNSW node ID to stored vector
	nextID  int64
	k       int
}

func newHNSWSearcher(k int) *hnswSearcher {
	return &hnswSearcher{
		idToRef: make(map[int64]ref),
		k:       k,
	}
}

func newGraph() *hnsw.Graph[int64] {
	// Create new graph with cosine distance.
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

func (h *hnswSearcher) add(r ref, vec []float32) {
	// Zero vectors have no direction; they always score -1 and would poison
	// cosine distance inside the graph.
	if isZero(vec) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	id := h.nextID
	h.nextID++
	h.graph.Add(hnsw.MakeNode(id, vec))
	h.idToRef[id] = r
}

// candidates returns up to k stored vectors near query. A zero query or an
// empty graph asks the caller to scan everything.
func (h *hnswSearcher) candidates(query []float32) ([]ref, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 || isZero(query) {
		return nil, false
	}

	neighbors := h.graph.Search(query, h.k)
	refs := make([]ref, 0, len(neighbors))
	for _, n := range neighbors {
		if r, ok := h.idToRef[n.Key]; ok {
			refs = append(refs, r)
		}
	}
	return refs, true
}

func (h *hnswSearcher) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = nil
	h.idToRef = make(map[int64]ref)
	h.nextID = 0
}
