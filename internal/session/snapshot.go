package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-counter/internal/tracking"
)

// Data is the full state of one session: the person list in detection
// order, the derived stats, and the run window.
type Data struct {
	Persons   []*tracking.Person    `json:"persons"`
	Stats     tracking.SessionStats `json:"stats"`
	StartTime time.Time             `json:"startTime"`
	EndTime   *time.Time            `json:"endTime,omitempty"`
}

// SnapshotStore persists the session to a single fixed slot on disk so a
// run survives a process restart. Starting a new session discards it.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore creates a store writing to path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Save serializes the session data to the slot. The write goes through a
// temp file and rename so a crash never leaves a half-written snapshot.
func (s *SnapshotStore) Save(data *Data) error {
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("write session snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session snapshot: %w", err)
	}
	return nil
}

// Load reads the slot. Returns (nil, nil) when no snapshot exists.
// Timestamps come back as real time values via the JSON codec.
func (s *SnapshotStore) Load() (*Data, error) {
	buf, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session snapshot: %w", err)
	}

	var data Data
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, fmt.Errorf("parse session snapshot: %w", err)
	}
	return &data, nil
}

// Discard removes the slot; a missing file is fine.
func (s *SnapshotStore) Discard() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard session snapshot: %w", err)
	}
	return nil
}
