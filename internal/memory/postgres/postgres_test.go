//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-counter/internal/config"
	"github.com/kozaktomas/face-counter/internal/memory"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
	}

	store, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		container.Terminate(ctx)
	}
	return store, cleanup
}

func testRecord(id string) *memory.Record {
	return &memory.Record{
		ID:             id,
		Embedding:      []float32{0.1, -0.2, 0.3},
		Gender:         "female",
		Age:            27.5,
		FirstDetected:  1000,
		LastDetected:   2000,
		DetectionCount: 2,
		SessionIDs:     []string{"session_a"},
	}
}

func TestStore_CRUD(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("person_1")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// Duplicate id is rejected.
	err := store.Put(ctx, testRecord("person_1"))
	if !errors.Is(err, memory.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.Get(ctx, "person_1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Gender != "female" || got.DetectionCount != 2 {
		t.Errorf("unexpected record: %+v", got)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("expected embedding of length 3, got %d", len(got.Embedding))
	}

	if _, err := store.Get(ctx, "person_missing"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	updated, err := store.Update(ctx, "person_1", func(rec *memory.Record) {
		rec.Touch(5000, "session_b")
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.DetectionCount != 3 || updated.LastDetected != 5000 {
		t.Errorf("unexpected updated record: %+v", updated)
	}
	if len(updated.SessionIDs) != 2 {
		t.Errorf("expected 2 session ids, got %v", updated.SessionIDs)
	}

	if _, err := store.Update(ctx, "person_missing", func(*memory.Record) {}); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ScanOrderAndClear(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"person_c", "person_a", "person_b"} {
		if err := store.Put(ctx, testRecord(id)); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	records, err := store.ScanAll(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"person_c", "person_a", "person_b"} {
		if records[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, records[i].ID)
		}
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	records, err = store.ScanAll(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty store, got %d records", len(records))
	}
}

func TestStore_FindNearest(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	embeddings := map[string][]float32{
		"person_x": {1, 0, 0},
		"person_y": {0, 1, 0},
		"person_z": {0.7, 0.7, 0},
	}
	for _, id := range []string{"person_x", "person_y", "person_z"} {
		rec := testRecord(id)
		rec.Embedding = embeddings[id]
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	ids, err := store.FindNearest(ctx, []float32{0.69, 0.71, 0}, 2)
	if err != nil {
		t.Fatalf("find nearest failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if ids[0] != "person_z" {
		t.Errorf("expected person_z nearest, got %s", ids[0])
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("person_1")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	const workers = 8
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := store.Update(ctx, "person_1", func(rec *memory.Record) {
				rec.DetectionCount++
			})
			errCh <- err
		}()
	}
	for i := 0; i < workers; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("concurrent update failed: %v", err)
		}
	}

	got, err := store.Get(ctx, "person_1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	// Row locking must not lose any increment.
	if got.DetectionCount != 2+workers {
		t.Errorf("expected detection count %d, got %d", 2+workers, got.DetectionCount)
	}
}
