// Package postgres provides a PostgreSQL face memory backend. Embeddings
// are stored as pgvector values so the database can also answer
// nearest-neighbor queries with the cosine distance operator.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-counter/internal/config"
	"github.com/kozaktomas/face-counter/internal/memory"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// Store is a PostgreSQL-backed memory.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL and applies pending migrations.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate face memory schema: %w", err)
	}
	return s, nil
}

// Put inserts a new record, failing with memory.ErrDuplicateKey on collision.
func (s *Store) Put(ctx context.Context, rec *memory.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO face_records
			(id, embedding, gender, age, first_detected, last_detected, detection_count, session_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, pgvector.NewVector(rec.Embedding), rec.Gender, rec.Age,
		rec.FirstDetected, rec.LastDetected, rec.DetectionCount, rec.SessionIDs)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("put %s: %w", rec.ID, memory.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert face record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*memory.Record, error) {
	var rec memory.Record
	var vec pgvector.Vector
	err := row.Scan(&rec.ID, &vec, &rec.Gender, &rec.Age,
		&rec.FirstDetected, &rec.LastDetected, &rec.DetectionCount, &rec.SessionIDs)
	if err != nil {
		return nil, err
	}
	rec.Embedding = vec.Slice()
	return &rec, nil
}

// Get returns the record for id, or memory.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT id, embedding, gender, age, first_detected, last_detected, detection_count, session_ids
		FROM face_records
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get face record: %w", err)
	}
	return rec, nil
}

// Update applies mutate inside a transaction with the row locked, so
// overlapping updates to one id are serialized by the database.
func (s *Store) Update(ctx context.Context, id string, mutate func(*memory.Record)) (*memory.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := scanRecord(tx.QueryRow(ctx, `
		SELECT id, embedding, gender, age, first_detected, last_detected, detection_count, session_ids
		FROM face_records
		WHERE id = $1
		FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load face record: %w", err)
	}

	mutate(rec)

	_, err = tx.Exec(ctx, `
		UPDATE face_records
		SET embedding = $2, gender = $3, age = $4, first_detected = $5,
		    last_detected = $6, detection_count = $7, session_ids = $8
		WHERE id = $1
	`, rec.ID, pgvector.NewVector(rec.Embedding), rec.Gender, rec.Age,
		rec.FirstDetected, rec.LastDetected, rec.DetectionCount, rec.SessionIDs)
	if err != nil {
		return nil, fmt.Errorf("save face record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return rec, nil
}

// ScanAll returns every record in insertion order.
func (s *Store) ScanAll(ctx context.Context) ([]memory.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, embedding, gender, age, first_detected, last_detected, detection_count, session_ids
		FROM face_records
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("scan face records: %w", err)
	}
	defer rows.Close()

	var records []memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face record row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face records: %w", err)
	}
	return records, nil
}

// FindNearest returns the ids of the k records closest to the query by
// cosine distance, letting the database do the ordering.
func (s *Store) FindNearest(ctx context.Context, embedding []float32, k int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM face_records
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("nearest face records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan nearest id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest ids: %w", err)
	}
	return ids, nil
}

// Clear empties the store in one statement.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM face_records"); err != nil {
		return fmt.Errorf("clear face memory: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
