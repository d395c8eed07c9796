package detector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Detect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/faces" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"faces_count": 2,
			"faces": [
				{"embedding": [0.1, 0.2], "gender": "female", "age": 31.5, "det_score": 0.92},
				{"embedding": [0.3, 0.4], "gender": "male", "age": 8, "det_score": 0.88}
			],
			"model": "buffalo_l"
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	faces, err := client.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].Gender != "female" || faces[0].Age != 31.5 {
		t.Errorf("unexpected first face: %+v", faces[0])
	}
	if len(faces[1].Embedding) != 2 {
		t.Errorf("expected embedding of length 2, got %d", len(faces[1].Embedding))
	}
}

func TestClient_Detect_NoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"faces_count": 0, "faces": [], "model": "buffalo_l"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	faces, err := client.Detect(context.Background())
	if err != nil {
		t.Fatalf("an empty frame is not an error: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
}

func TestClient_Detect_MissingEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"faces_count": 1, "faces": [{"gender": "male", "age": 30}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	if _, err := client.Detect(context.Background()); err == nil {
		t.Error("expected an error for a face without an embedding")
	}
}

func TestClient_Detect_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"faces_count": 1, "faces": [{"embedding": [0.1, 0.2], "gender": "male", "age": 30}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 512)
	if _, err := client.Detect(context.Background()); err == nil {
		t.Error("expected an error for a wrong-sized embedding")
	}
}

func TestClient_Detect_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "camera not ready", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	if _, err := client.Detect(context.Background()); err == nil {
		t.Error("expected an error for a non-200 response")
	}
}

func TestClient_Detect_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	if _, err := client.Detect(context.Background()); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	client := NewClient("http://example.com/", 0)
	if client.baseURL != "http://example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", client.baseURL)
	}
}
