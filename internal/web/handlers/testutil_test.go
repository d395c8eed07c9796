package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/face-counter/internal/detector"
	"github.com/kozaktomas/face-counter/internal/memory/mock"
	"github.com/kozaktomas/face-counter/internal/observability"
	"github.com/kozaktomas/face-counter/internal/session"
	"github.com/kozaktomas/face-counter/internal/tracking"
)

// newTestController builds a controller wired to an empty mock store and a
// detector that never sees a face. The tick interval is long enough that no
// tick fires during a test.
func newTestController(t *testing.T, store *mock.MockStore) *session.Controller {
	t.Helper()

	tracker := tracking.New(tracking.Config{
		SessionThreshold: 0.58,
		MemoryThreshold:  0.58,
		Cooldown:         5 * time.Second,
		ChildAgeMax:      10,
	}, store, nil)

	det := detector.Func(func(ctx context.Context) ([]detector.Detection, error) {
		return nil, nil
	})

	metrics := observability.NewMetricsWith("face_counter_test", prometheus.NewRegistry())
	return session.NewController(tracker, det, nil, metrics, time.Hour)
}

func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d (body: %s)", expected, recorder.Code, recorder.Body.String())
	}
}

func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	if got := recorder.Header().Get("Content-Type"); got != expected {
		t.Errorf("expected content type %q, got %q", expected, got)
	}
}

func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
}
