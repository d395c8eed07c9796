package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-counter/internal/memory"
)

// MemoryHandler exposes the cross-session face memory.
type MemoryHandler struct {
	store memory.Store
	index *memory.Index // optional, cleared together with the store
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(store memory.Store, index *memory.Index) *MemoryHandler {
	return &MemoryHandler{store: store, index: index}
}

// recordView is a Record without its embedding.
type recordView struct {
	ID             string   `json:"id"`
	Gender         string   `json:"gender"`
	Age            float64  `json:"age"`
	FirstDetected  int64    `json:"firstDetected"`
	LastDetected   int64    `json:"lastDetected"`
	DetectionCount int      `json:"detectionCount"`
	SessionIDs     []string `json:"sessionIds"`
}

// List returns all remembered faces in stored order.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ScanAll(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	views := make([]recordView, 0, len(records))
	for i := range records {
		rec := &records[i]
		views = append(views, recordView{
			ID:             rec.ID,
			Gender:         rec.Gender,
			Age:            rec.Age,
			FirstDetected:  rec.FirstDetected,
			LastDetected:   rec.LastDetected,
			DetectionCount: rec.DetectionCount,
			SessionIDs:     rec.SessionIDs,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": views})
}

// Stats returns memory-wide totals.
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := memory.CollectStats(r.Context(), h.store)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Clear irreversibly empties the face memory.
func (h *MemoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if h.index != nil {
		h.index.Clear()
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
