package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/face-counter/internal/memory"
	"github.com/kozaktomas/face-counter/internal/memory/mock"
)

func testConfig() Config {
	return Config{
		SessionThreshold: 0.58,
		MemoryThreshold:  0.58,
		Cooldown:         5 * time.Second,
		ChildAgeMax:      10,
	}
}

// newTestTracker returns a tracker with a controllable clock.
func newTestTracker(store memory.Store) (*Tracker, *time.Time) {
	tr := New(testConfig(), store, nil)
	tr.Reset("session_test")

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func processOne(t *testing.T, tr *Tracker, det Detection) Result {
	t.Helper()
	results, err := tr.Process(context.Background(), []Detection{det})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	return results[0]
}

func TestTracker_NewPerson(t *testing.T) {
	store := mock.NewMockStore()
	tr, _ := newTestTracker(store)

	res := processOne(t, tr, Detection{Embedding: Embedding{1, 0, 0}, Gender: GenderFemale, Age: 25})

	if res.Kind != MatchNew {
		t.Fatalf("expected new person, got %q", res.Kind)
	}
	if res.Person.Appearances != 1 {
		t.Errorf("expected 1 appearance, got %d", res.Person.Appearances)
	}

	// The person must be durably remembered.
	rec, err := store.Get(context.Background(), res.Person.ID)
	if err != nil {
		t.Fatalf("expected persisted record: %v", err)
	}
	if rec.DetectionCount != 1 {
		t.Errorf("expected detection count 1, got %d", rec.DetectionCount)
	}
	if len(rec.SessionIDs) != 1 || rec.SessionIDs[0] != "session_test" {
		t.Errorf("expected session list [session_test], got %v", rec.SessionIDs)
	}
}

func TestTracker_SessionMatchCooldown(t *testing.T) {
	store := mock.NewMockStore()
	tr, now := newTestTracker(store)

	face := Detection{Embedding: Embedding{1, 0, 0}, Gender: GenderMale, Age: 30}
	first := processOne(t, tr, face)
	if first.Kind != MatchNew {
		t.Fatalf("expected new person, got %q", first.Kind)
	}

	// Next frame, 1.5s later: same person, still inside the cooldown. The
	// detection resolves to them but the count stays put.
	*now = now.Add(1500 * time.Millisecond)
	drifted := Detection{Embedding: Embedding{1, 0.05, 0}, Gender: GenderMale, Age: 30}
	second := processOne(t, tr, drifted)

	if second.Kind != MatchSession {
		t.Fatalf("expected session match, got %q", second.Kind)
	}
	if second.Person.ID != first.Person.ID {
		t.Errorf("expected same person, got %q and %q", first.Person.ID, second.Person.ID)
	}
	if second.Updated {
		t.Error("appearance must not increment inside the cooldown")
	}
	if second.Person.Appearances != 1 {
		t.Errorf("expected 1 appearance, got %d", second.Person.Appearances)
	}

	// Past the cooldown the same person counts again.
	*now = now.Add(5 * time.Second)
	third := processOne(t, tr, face)
	if third.Kind != MatchSession || !third.Updated {
		t.Fatalf("expected updated session match, got %q updated=%v", third.Kind, third.Updated)
	}
	if third.Person.Appearances != 2 {
		t.Errorf("expected 2 appearances, got %d", third.Person.Appearances)
	}

	if len(tr.Persons()) != 1 {
		t.Errorf("expected a single unique person, got %d", len(tr.Persons()))
	}
}

func TestTracker_BestMatchWins(t *testing.T) {
	store := mock.NewMockStore()
	tr, _ := newTestTracker(store)

	a := processOne(t, tr, Detection{Embedding: Embedding{1, 0, 0}, Gender: GenderMale, Age: 30})
	b := processOne(t, tr, Detection{Embedding: Embedding{0.5, 0.866, 0}, Gender: GenderMale, Age: 40})
	if b.Kind != MatchNew {
		t.Fatalf("expected a second distinct person, got %q", b.Kind)
	}

	// Above the threshold for both, but closer to b; a first-match scan
	// over insertion order would pick a.
	query := Detection{Embedding: Embedding{0.8, 0.6, 0}, Gender: GenderMale, Age: 40}
	res := processOne(t, tr, query)

	if res.Kind != MatchSession {
		t.Fatalf("expected session match, got %q", res.Kind)
	}
	if res.Person.ID != b.Person.ID {
		t.Errorf("expected best match %q, got %q", b.Person.ID, res.Person.ID)
	}
	if res.Person.ID == a.Person.ID {
		t.Error("matched the first candidate instead of the best one")
	}
}

func TestTracker_MemoryMatchReusesIdentity(t *testing.T) {
	store := mock.NewMockStore()
	seedEmbedding := []float32{1, 0, 0}
	err := store.Put(context.Background(), &memory.Record{
		ID:             "person_returning",
		Embedding:      seedEmbedding,
		Gender:         "female",
		Age:            28,
		FirstDetected:  1000,
		LastDetected:   1000,
		DetectionCount: 4,
		SessionIDs:     []string{"session_old"},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	tr, now := newTestTracker(store)
	res := processOne(t, tr, Detection{Embedding: Embedding{1, 0.02, 0}, Gender: GenderFemale, Age: 28})

	if res.Kind != MatchMemory {
		t.Fatalf("expected memory match, got %q", res.Kind)
	}
	if res.Person.ID != "person_returning" {
		t.Errorf("expected the stored identity, got %q", res.Person.ID)
	}
	if res.Similarity <= 0.58 {
		t.Errorf("expected similarity above threshold, got %v", res.Similarity)
	}

	rec, err := store.Get(context.Background(), "person_returning")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.DetectionCount != 5 {
		t.Errorf("expected detection count 5, got %d", rec.DetectionCount)
	}
	if rec.LastDetected != now.UnixMilli() {
		t.Errorf("expected last detected %d, got %d", now.UnixMilli(), rec.LastDetected)
	}
	if len(rec.SessionIDs) != 2 || rec.SessionIDs[1] != "session_test" {
		t.Errorf("expected the current session appended, got %v", rec.SessionIDs)
	}
}

func TestTracker_MemoryUnavailableDegradesToSessionOnly(t *testing.T) {
	store := mock.NewMockStore()
	store.ScanError = errors.New("database is down")
	tr, _ := newTestTracker(store)

	results, err := tr.Process(context.Background(), []Detection{
		{Embedding: Embedding{1, 0, 0}, Gender: GenderMale, Age: 30},
	})

	if err == nil {
		t.Fatal("expected the store error to surface")
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Kind != MatchSessionOnly {
		t.Errorf("expected session-only person, got %q", results[0].Kind)
	}
	// The person still counts for this session.
	if len(tr.Persons()) != 1 {
		t.Errorf("expected 1 session person, got %d", len(tr.Persons()))
	}
}

func TestTracker_PutFailureStillCountsPerson(t *testing.T) {
	store := mock.NewMockStore()
	store.PutError = errors.New("disk full")
	tr, _ := newTestTracker(store)

	results, err := tr.Process(context.Background(), []Detection{
		{Embedding: Embedding{1, 0, 0}, Gender: GenderMale, Age: 30},
	})

	if err == nil {
		t.Fatal("expected the put error to surface")
	}
	if results[0].Kind != MatchSessionOnly {
		t.Errorf("expected session-only person, got %q", results[0].Kind)
	}
	if len(tr.Persons()) != 1 {
		t.Errorf("expected 1 session person, got %d", len(tr.Persons()))
	}
}

func TestTracker_DistinctFacesStayDistinct(t *testing.T) {
	store := mock.NewMockStore()
	tr, _ := newTestTracker(store)

	results, err := tr.Process(context.Background(), []Detection{
		{Embedding: Embedding{1, 0, 0}, Gender: GenderMale, Age: 30},
		{Embedding: Embedding{0, 1, 0}, Gender: GenderFemale, Age: 8},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Kind != MatchNew {
			t.Errorf("result %d: expected new person, got %q", i, res.Kind)
		}
	}
	if results[0].Person.ID == results[1].Person.ID {
		t.Error("orthogonal embeddings must not merge")
	}

	stats := tr.Stats()
	if stats.UniquePersons != 2 || stats.Children != 1 || stats.Adults != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestTracker_SkipsEmptyEmbeddings(t *testing.T) {
	store := mock.NewMockStore()
	tr, _ := newTestTracker(store)

	results, err := tr.Process(context.Background(), []Detection{
		{Embedding: nil, Gender: GenderMale, Age: 30},
		{Embedding: Embedding{1, 0, 0}, Gender: GenderMale, Age: 30},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the empty detection to be dropped, got %d results", len(results))
	}
}

func TestTracker_ResetClearsSessionNotMemory(t *testing.T) {
	store := mock.NewMockStore()
	tr, _ := newTestTracker(store)

	first := processOne(t, tr, Detection{Embedding: Embedding{1, 0, 0}, Gender: GenderMale, Age: 30})

	tr.Reset("session_next")
	if len(tr.Persons()) != 0 {
		t.Fatalf("expected empty session after reset, got %d persons", len(tr.Persons()))
	}

	// The same face in the new session comes back from memory with the
	// same identity.
	res := processOne(t, tr, Detection{Embedding: Embedding{1, 0, 0}, Gender: GenderMale, Age: 30})
	if res.Kind != MatchMemory {
		t.Fatalf("expected memory match after reset, got %q", res.Kind)
	}
	if res.Person.ID != first.Person.ID {
		t.Errorf("expected identity %q to survive the reset, got %q", first.Person.ID, res.Person.ID)
	}
}

func TestTracker_IndexedLookupAgreesWithScan(t *testing.T) {
	store := mock.NewMockStore()
	embeddings := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.7, 0.7, 0},
	}
	for i, emb := range embeddings {
		err := store.Put(context.Background(), &memory.Record{
			ID:             "person_" + string(rune('a'+i)),
			Embedding:      emb,
			Gender:         "male",
			Age:            30,
			DetectionCount: 1,
		})
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	records, err := store.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	index := memory.NewIndex("")
	index.BuildFromRecords(records)

	tr := New(testConfig(), store, index)
	tr.Reset("session_test")

	res := processOne(t, tr, Detection{Embedding: Embedding{0.72, 0.69, 0}, Gender: GenderMale, Age: 30})
	if res.Kind != MatchMemory {
		t.Fatalf("expected memory match via index, got %q", res.Kind)
	}
	if res.Person.ID != "person_d" {
		t.Errorf("expected nearest record person_d, got %q", res.Person.ID)
	}
}
