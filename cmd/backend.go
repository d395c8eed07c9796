package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-counter/internal/config"
	"github.com/kozaktomas/face-counter/internal/memory"
	"github.com/kozaktomas/face-counter/internal/memory/postgres"
)

// openStore opens the configured face memory backend. PostgreSQL is used
// when DATABASE_URL is set, SQLite otherwise.
func openStore(ctx context.Context, cfg *config.Config) (memory.Store, error) {
	if cfg.Database.URL != "" {
		fmt.Println("Using PostgreSQL face memory")
		store, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return store, nil
	}

	fmt.Printf("Using SQLite face memory at %s\n", cfg.Database.SQLitePath)
	store, err := memory.OpenSQLite(cfg.Database.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite store: %w", err)
	}
	return store, nil
}

// initIndex builds or loads the face HNSW index for fast similarity search.
// Failures are not fatal; matching falls back to a linear scan.
func initIndex(ctx context.Context, store memory.Store, indexPath string) *memory.Index {
	index := memory.NewIndex(indexPath)

	records, err := store.ScanAll(ctx)
	if err != nil {
		fmt.Printf("Warning: failed to read face memory for indexing: %v\n", err)
		fmt.Println("Face matching will use linear scans (slower)")
		return nil
	}

	if indexPath != "" {
		fmt.Printf("Loading face HNSW index from %s...\n", indexPath)
		if err := index.Load(len(records)); err == nil && index.Loaded() {
			fmt.Printf("Face HNSW index ready with %d faces\n", index.Count())
			return index
		}
		fmt.Println("Saved index unusable, rebuilding...")
	} else {
		fmt.Println("Building in-memory HNSW index for face matching...")
	}

	index.BuildFromRecords(records)
	fmt.Printf("Face HNSW index built with %d faces\n", index.Count())
	return index
}

// saveIndex persists the HNSW index during shutdown when a path is configured.
func saveIndex(index *memory.Index) {
	if index == nil {
		return
	}
	if err := index.Save(); err != nil {
		fmt.Printf("Warning: failed to save face HNSW index: %v\n", err)
	}
}
