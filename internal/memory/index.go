package memory

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// indexMaxNeighbors is the HNSW M parameter.
const indexMaxNeighbors = 16

// Index is an optional in-memory HNSW index over face memory records. It
// accelerates the cross-session best-match search for large memories; the
// engine falls back to a linear scan when no index is configured or a
// search fails. Candidate similarities from the index are always
// re-verified with the exact scorer before a match is accepted.
type Index struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // for persistence
	count      int
	mu         sync.RWMutex
	path       string // path to save/load the index (optional)
}

// NewIndex creates a new empty index. If path is non-empty the index is
// persisted there on Save.
func NewIndex(path string) *Index {
	return &Index{path: path}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromRecords replaces the index contents with the given records.
func (ix *Index) BuildFromRecords(records []Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.savedGraph = nil
	if len(records) == 0 {
		ix.graph = nil
		ix.count = 0
		return
	}

	g := newGraph()
	count := 0
	for i := range records {
		if len(records[i].Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(records[i].ID, records[i].Embedding))
		count++
	}
	ix.graph = g
	ix.count = count
}

// Add inserts a single record into the index.
func (ix *Index) Add(rec *Record) {
	if len(rec.Embedding) == 0 {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.savedGraph != nil {
		ix.savedGraph.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
		ix.count++
		return
	}
	if ix.graph == nil {
		ix.graph = newGraph()
	}
	ix.graph.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
	ix.count++
}

// Search returns the ids of the k nearest records to the query embedding.
func (ix *Index) Search(query []float32, k int) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil && ix.savedGraph == nil {
		return nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[string]
	if ix.savedGraph != nil {
		neighbors = ix.savedGraph.Search(query, k)
	} else {
		neighbors = ix.graph.Search(query, k)
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
	}
	return ids, nil
}

// Count returns the number of indexed records.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// Clear drops all indexed records.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.graph = nil
	ix.savedGraph = nil
	ix.count = 0
	if ix.path != "" {
		// Best-effort cleanup of the stale on-disk index.
		_ = os.Remove(ix.path)
	}
}

// Save persists the index to its configured path, if any.
func (ix *Index) Save() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.path == "" {
		return nil
	}
	if ix.graph == nil && ix.savedGraph == nil {
		// Remove existing file if index is empty (best-effort cleanup).
		_ = os.Remove(ix.path)
		return nil
	}

	f, err := os.Create(ix.path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	if ix.savedGraph != nil {
		// SavedGraph embeds *Graph, so Export works on it directly.
		if err := ix.savedGraph.Export(f); err != nil {
			return fmt.Errorf("exporting index graph: %w", err)
		}
		return nil
	}
	if err := ix.graph.Export(f); err != nil {
		return fmt.Errorf("exporting index graph: %w", err)
	}
	return nil
}

// Load restores the index from its configured path. A missing file is not
// an error; the index simply stays empty and can be rebuilt from the store.
// recordCount should be the number of records backing the index so Count
// stays accurate after a load.
func (ix *Index) Load(recordCount int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.path == "" {
		return nil
	}
	if _, err := os.Stat(ix.path); os.IsNotExist(err) {
		return nil // no index file, caller builds from records
	}

	saved, err := hnsw.LoadSavedGraph[string](ix.path)
	if err != nil {
		return fmt.Errorf("load index file: %w", err)
	}
	ix.savedGraph = saved
	ix.graph = nil
	ix.count = recordCount
	return nil
}

// Loaded reports whether Load found a persisted graph.
func (ix *Index) Loaded() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.savedGraph != nil
}
