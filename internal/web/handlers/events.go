package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kozaktomas/face-counter/internal/session"
)

// EventsHandler streams live session stats over SSE.
type EventsHandler struct {
	controller *session.Controller
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(controller *session.Controller) *EventsHandler {
	return &EventsHandler{controller: controller}
}

// Stream pushes a stats event after every processed tick until the client
// disconnects. The first event carries the current aggregate so late
// subscribers start from the right numbers.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	statsCh := h.controller.AddListener()
	defer h.controller.RemoveListener(statsCh)

	sendSSEEvent(w, flusher, "stats", h.controller.Snapshot().Stats)

	for {
		select {
		case <-r.Context().Done():
			return
		case stats, open := <-statsCh:
			if !open {
				return
			}
			sendSSEEvent(w, flusher, "stats", stats)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
