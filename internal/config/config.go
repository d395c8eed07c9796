package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Detector DetectorConfig
	Database DatabaseConfig
	Tracking TrackingConfig
	Session  SessionConfig
}

type DetectorConfig struct {
	URL string // base URL of the face detection service (defaults to http://localhost:8000)
}

type DatabaseConfig struct {
	SQLitePath    string // path to the SQLite face memory database (default face-counter.db)
	URL           string // PostgreSQL connection URL; when set, face memory uses Postgres instead of SQLite
	MaxOpenConns  int    // maximum open connections for Postgres (default 10)
	HNSWIndexPath string // path to persist the face HNSW index (optional, if empty index is rebuilt on startup)
}

type TrackingConfig struct {
	SessionThreshold float64       // minimum cosine similarity for an in-session match
	MemoryThreshold  float64       // minimum cosine similarity for a cross-session match
	Cooldown         time.Duration // minimum gap between appearance increments for one person
	ChildAgeMax      float64       // ages at or below this value classify as child
	EmbeddingDim     int           // expected embedding dimensionality
}

type SessionConfig struct {
	TickInterval time.Duration // detection cadence
	SnapshotPath string        // path of the persisted session snapshot (default session-snapshot.json)
}

// tuningDefaults mirrors defaults.yaml and provides the baseline values
// that environment variables may override.
type tuningDefaults struct {
	Tracking struct {
		SessionThreshold float64 `yaml:"session_threshold"`
		MemoryThreshold  float64 `yaml:"memory_threshold"`
		CooldownMs       int     `yaml:"cooldown_ms"`
		ChildAgeMax      float64 `yaml:"child_age_max"`
		EmbeddingDim     int     `yaml:"embedding_dim"`
	} `yaml:"tracking"`
	Session struct {
		TickIntervalMs int `yaml:"tick_interval_ms"`
	} `yaml:"session"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envString reads an environment variable, falling back to a default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults tuningDefaults
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Detector: DetectorConfig{
			URL: envString("DETECTOR_URL", "http://localhost:8000"),
		},
		Database: DatabaseConfig{
			SQLitePath:    envString("FACE_COUNTER_DB_PATH", "face-counter.db"),
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 10),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Tracking: TrackingConfig{
			SessionThreshold: envFloat("SESSION_THRESHOLD", defaults.Tracking.SessionThreshold),
			MemoryThreshold:  envFloat("MEMORY_THRESHOLD", defaults.Tracking.MemoryThreshold),
			Cooldown:         time.Duration(envInt("COOLDOWN_MS", defaults.Tracking.CooldownMs)) * time.Millisecond,
			ChildAgeMax:      envFloat("CHILD_AGE_MAX", defaults.Tracking.ChildAgeMax),
			EmbeddingDim:     envInt("EMBEDDING_DIM", defaults.Tracking.EmbeddingDim),
		},
		Session: SessionConfig{
			TickInterval: time.Duration(envInt("TICK_INTERVAL_MS", defaults.Session.TickIntervalMs)) * time.Millisecond,
			SnapshotPath: envString("SNAPSHOT_PATH", "session-snapshot.json"),
		},
	}
}
