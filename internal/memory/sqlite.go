package memory

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// faceRow is the gorm model backing Record in SQLite. The embedding is
// stored as little-endian float32 bytes, session ids as a JSON array.
type faceRow struct {
	Seq            int64  `gorm:"primaryKey;autoIncrement"`
	ID             string `gorm:"uniqueIndex;not null"`
	Embedding      []byte
	Gender         string
	Age            float64
	FirstDetected  int64 `gorm:"index"`
	LastDetected   int64
	DetectionCount int
	SessionIDs     string
}

func (faceRow) TableName() string { return "face_records" }

// SQLiteStore is the default embedded face memory backend.
type SQLiteStore struct {
	db *gorm.DB

	// Serializes writers so overlapping updates to one id never lose
	// an increment; SQLite allows only a single writer anyway.
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the face memory database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open face memory database: %w", err)
	}
	if err := db.AutoMigrate(&faceRow{}); err != nil {
		return nil, fmt.Errorf("migrate face memory schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding
}

func toRow(rec *Record) (*faceRow, error) {
	sessions, err := json.Marshal(rec.SessionIDs)
	if err != nil {
		return nil, fmt.Errorf("encode session ids: %w", err)
	}
	return &faceRow{
		ID:             rec.ID,
		Embedding:      encodeEmbedding(rec.Embedding),
		Gender:         rec.Gender,
		Age:            rec.Age,
		FirstDetected:  rec.FirstDetected,
		LastDetected:   rec.LastDetected,
		DetectionCount: rec.DetectionCount,
		SessionIDs:     string(sessions),
	}, nil
}

func fromRow(row *faceRow) (*Record, error) {
	rec := &Record{
		ID:             row.ID,
		Embedding:      decodeEmbedding(row.Embedding),
		Gender:         row.Gender,
		Age:            row.Age,
		FirstDetected:  row.FirstDetected,
		LastDetected:   row.LastDetected,
		DetectionCount: row.DetectionCount,
	}
	if row.SessionIDs != "" {
		if err := json.Unmarshal([]byte(row.SessionIDs), &rec.SessionIDs); err != nil {
			return nil, fmt.Errorf("decode session ids for %s: %w", row.ID, err)
		}
	}
	return rec, nil
}

// Put inserts a new record, failing with ErrDuplicateKey on id collision.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := toRow(rec)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&faceRow{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check face record exists: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("put %s: %w", rec.ID, ErrDuplicateKey)
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert face record: %w", err)
		}
		return nil
	})
}

// Get returns the record for id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	var row faceRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get face record: %w", err)
	}
	return fromRow(&row)
}

// Update applies mutate to the stored record inside a transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, mutate func(*Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row faceRow
		err := tx.Where("id = ?", id).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("update %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load face record: %w", err)
		}

		rec, err := fromRow(&row)
		if err != nil {
			return err
		}
		mutate(rec)

		next, err := toRow(rec)
		if err != nil {
			return err
		}
		next.Seq = row.Seq
		if err := tx.Save(next).Error; err != nil {
			return fmt.Errorf("save face record: %w", err)
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ScanAll returns every record in insertion order.
func (s *SQLiteStore) ScanAll(ctx context.Context) ([]Record, error) {
	var rows []faceRow
	if err := s.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan face records: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Clear deletes every record in one transaction.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&faceRow{}).Error; err != nil {
		return fmt.Errorf("clear face memory: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close face memory database: %w", err)
	}
	return nil
}
