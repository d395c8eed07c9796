package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultDetectorURL = "http://localhost:8000"

// Client calls the face detection service over HTTP.
type Client struct {
	baseURL      string
	embeddingDim int
	client       *http.Client
}

// NewClient creates a detector client for the given base URL. When
// embeddingDim is positive, responses with a different vector length are
// rejected; zero disables the check.
func NewClient(baseURL string, embeddingDim int) *Client {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		embeddingDim: embeddingDim,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

// facesResponse is the wire format of the /faces endpoint.
type facesResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []Detection `json:"faces"`
	Model      string      `json:"model"`
}

// Detect asks the service for the faces in its current frame.
func (c *Client) Detect(ctx context.Context) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/faces", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var facesResp facesResponse
	if err := json.Unmarshal(body, &facesResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// A frame without faces is a normal answer, but faces without
	// embeddings are malformed and would poison the matcher.
	for i := range facesResp.Faces {
		if len(facesResp.Faces[i].Embedding) == 0 {
			return nil, errors.New("face without embedding in response")
		}
		if c.embeddingDim > 0 && len(facesResp.Faces[i].Embedding) != c.embeddingDim {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d",
				len(facesResp.Faces[i].Embedding), c.embeddingDim)
		}
	}

	return facesResp.Faces, nil
}
