package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/face-counter/internal/export"
	"github.com/kozaktomas/face-counter/internal/session"
	"github.com/kozaktomas/face-counter/internal/tracking"
)

// SessionHandler exposes session control and session data.
type SessionHandler struct {
	controller *session.Controller
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(controller *session.Controller) *SessionHandler {
	return &SessionHandler{controller: controller}
}

// sessionResponse is the session status payload.
type sessionResponse struct {
	State     session.State `json:"state"`
	Status    string        `json:"status"`
	SessionID string        `json:"sessionId,omitempty"`
	StartTime time.Time     `json:"startTime"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
}

// Get returns the current session state and run window.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	data := h.controller.Snapshot()
	respondJSON(w, http.StatusOK, sessionResponse{
		State:     h.controller.State(),
		Status:    h.controller.Status(),
		SessionID: h.controller.SessionID(),
		StartTime: data.StartTime,
		EndTime:   data.EndTime,
	})
}

// Start begins a new session.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Start(r.Context()); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": string(session.StateRunning)})
}

// Stop ends the running session.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Stop(); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": string(session.StateStopped)})
}

// New resets a stopped session back to idle.
func (h *SessionHandler) New(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.NewSession(); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": string(session.StateIdle)})
}

// Stats returns the derived session aggregate.
func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	data := h.controller.Snapshot()
	respondJSON(w, http.StatusOK, data.Stats)
}

// personView is a Person without its embedding; the raw vector is an
// internal matching detail, not API surface.
type personView struct {
	ID           string    `json:"id"`
	Gender       string    `json:"gender"`
	AgeGroup     string    `json:"ageGroup"`
	EstimatedAge float64   `json:"estimatedAge"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	Appearances  int       `json:"appearances"`
}

func toPersonViews(persons []*tracking.Person) []personView {
	views := make([]personView, 0, len(persons))
	for _, p := range persons {
		views = append(views, personView{
			ID:           p.ID,
			Gender:       string(p.Gender),
			AgeGroup:     string(p.AgeGroup),
			EstimatedAge: p.EstimatedAge,
			FirstSeen:    p.FirstSeen,
			LastSeen:     p.LastSeen,
			Appearances:  p.Appearances,
		})
	}
	return views
}

// Persons returns the person list in detection order.
func (h *SessionHandler) Persons(w http.ResponseWriter, r *http.Request) {
	data := h.controller.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"persons": toPersonViews(data.Persons),
	})
}

// Export streams the person list as a CSV download.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	data := h.controller.Snapshot()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(data.StartTime)))
	if err := export.WriteCSV(w, data.Persons); err != nil {
		// Headers are already out; all we can do is log-level surface.
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
