// Package memory provides the durable cross-session face store. Every person
// ever identified is kept as a Record keyed by an opaque id; the id is the
// durable identity and is reused whenever the same face is seen again in a
// later session.
package memory

import (
	"context"
	"errors"
	"slices"
)

var (
	// ErrNotFound is returned when an update or get references an absent id.
	ErrNotFound = errors.New("face record not found")
	// ErrDuplicateKey is returned when a put collides with an existing id.
	// Ids are unique by construction, so a collision indicates a logic error.
	ErrDuplicateKey = errors.New("face record id already exists")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("face memory unavailable")
)

// Record is one remembered face. Timestamps are epoch milliseconds.
type Record struct {
	ID             string    `json:"id"`
	Embedding      []float32 `json:"embedding"`
	Gender         string    `json:"gender"`
	Age            float64   `json:"age"`
	FirstDetected  int64     `json:"firstDetected"`
	LastDetected   int64     `json:"lastDetected"`
	DetectionCount int       `json:"detectionCount"`
	SessionIDs     []string  `json:"sessionIds"`
}

// Touch registers one more sighting at the given time, appending the
// session id if the record has not been seen in that session yet.
func (r *Record) Touch(nowMillis int64, sessionID string) {
	r.LastDetected = nowMillis
	r.DetectionCount++
	if !slices.Contains(r.SessionIDs, sessionID) {
		r.SessionIDs = append(r.SessionIDs, sessionID)
	}
}

// Store is the durable face memory contract. Implementations must provide
// read-after-write consistency within the process and per-id atomicity for
// Update: concurrent updates to the same id must not lose increments.
type Store interface {
	// Put inserts a new record. Fails with ErrDuplicateKey if the id exists.
	Put(ctx context.Context, rec *Record) error
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// Update applies mutate to the record for id atomically.
	// Fails with ErrNotFound if the id is absent.
	Update(ctx context.Context, id string, mutate func(*Record)) (*Record, error)
	// ScanAll returns every record in stable stored (insertion) order.
	ScanAll(ctx context.Context) ([]Record, error)
	// Clear irreversibly empties the store. It never partially clears.
	Clear(ctx context.Context) error
	Close() error
}

// Stats summarizes the whole store.
type Stats struct {
	TotalFaces      int `json:"totalFaces"`
	TotalDetections int `json:"totalDetections"`
}

// CollectStats folds over all records.
func CollectStats(ctx context.Context, store Store) (Stats, error) {
	records, err := store.ScanAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalFaces: len(records)}
	for i := range records {
		stats.TotalDetections += records[i].DetectionCount
	}
	return stats, nil
}
