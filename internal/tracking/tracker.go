package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/face-counter/internal/memory"
)

// memoryCandidates is how many neighbors the ANN index is asked for; each
// candidate is re-verified with the exact scorer before it can match.
const memoryCandidates = 4

// MatchKind says how a detection was resolved.
type MatchKind string

const (
	// MatchSession means the detection re-identified a person already in
	// the current session list.
	MatchSession MatchKind = "session"
	// MatchMemory means the detection matched a face memory record and the
	// person re-entered the session under their stored id.
	MatchMemory MatchKind = "memory"
	// MatchNew means a brand-new person was created and persisted.
	MatchNew MatchKind = "new"
	// MatchSessionOnly means face memory was unavailable, so the person was
	// registered for this session without a durable record.
	MatchSessionOnly MatchKind = "session_only"
)

// Result describes the outcome for one detection.
type Result struct {
	Person     *Person
	Kind       MatchKind
	Similarity float64
	// Updated is true when the appearance count was incremented. A session
	// match inside the cooldown window still resolves to the person but
	// leaves the count untouched.
	Updated bool
}

// Config holds the tuning knobs of the engine.
type Config struct {
	SessionThreshold float64
	MemoryThreshold  float64
	Cooldown         time.Duration
	ChildAgeMax      float64
}

// Tracker is the match-and-merge engine. For every incoming detection it
// decides between an in-session re-identification, a returning person known
// from face memory, and a brand-new identity. It owns the session person
// list; face memory access goes through the injected store.
//
// All matching is best-match: the single highest-similarity candidate wins,
// and only if its similarity is strictly above the threshold. Equal maxima
// resolve to the first candidate in stored order. A session hit fully
// resolves the detection; memory is not consulted again for it.
type Tracker struct {
	cfg       Config
	store     memory.Store
	index     *memory.Index // optional ANN accelerator, may be nil
	sessionID string

	mu      sync.Mutex
	persons []*Person
	byID    map[string]*Person

	now func() time.Time
}

// New creates a tracker bound to the given face memory store. The index is
// optional; pass nil to always search memory with a linear scan.
func New(cfg Config, store memory.Store, index *memory.Index) *Tracker {
	return &Tracker{
		cfg:   cfg,
		store: store,
		index: index,
		byID:  make(map[string]*Person),
		now:   time.Now,
	}
}

// Reset clears the session person list and binds the tracker to a new
// session id. Face memory is never touched by a reset.
func (t *Tracker) Reset(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = sessionID
	t.persons = nil
	t.byID = make(map[string]*Person)
}

// Persons returns the session person list in detection order.
func (t *Tracker) Persons() []*Person {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Person(nil), t.persons...)
}

// Stats recomputes the session aggregate.
func (t *Tracker) Stats() SessionStats {
	return CalculateStats(t.Persons())
}

// Process runs the engine over all detections of one frame. Detections are
// applied one after another under the tracker lock, so two faces of the
// same frame that resolve to the same person can never diverge. Store
// failures degrade the affected detection to session-only tracking; the
// joined errors are returned alongside the results so the caller can log
// them without losing the batch.
func (t *Tracker) Process(ctx context.Context, detections []Detection) ([]Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	results := make([]Result, 0, len(detections))
	var errs []error
	for _, det := range detections {
		if len(det.Embedding) == 0 {
			continue // malformed detection, nothing to match against
		}
		res, err := t.processOne(ctx, det)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (t *Tracker) processOne(ctx context.Context, det Detection) (Result, error) {
	now := t.now()

	// Step 1: best match against the current session.
	if person, sim := t.findSessionMatch(det.Embedding); person != nil {
		updated := false
		if person.ReadyForUpdate(now, t.cfg.Cooldown) {
			person.RecordAppearance(now)
			updated = true
		}
		return Result{Person: person, Kind: MatchSession, Similarity: sim, Updated: updated}, nil
	}

	// Step 2: best match against face memory.
	rec, sim, err := t.findMemoryMatch(ctx, det.Embedding)
	if err != nil {
		// Memory is unavailable: still register the appearance as a
		// session-local person rather than dropping it.
		person := NewPerson(NewPersonID(), det, t.cfg.ChildAgeMax, now)
		t.addPerson(person)
		return Result{Person: person, Kind: MatchSessionOnly, Similarity: 0},
			fmt.Errorf("memory lookup: %w", err)
	}

	if rec != nil {
		return t.admitFromMemory(ctx, rec, det, sim, now)
	}

	// Step 3: brand-new person.
	person := NewPerson(NewPersonID(), det, t.cfg.ChildAgeMax, now)
	t.addPerson(person)

	newRec := &memory.Record{
		ID:             person.ID,
		Embedding:      person.Embedding,
		Gender:         string(person.Gender),
		Age:            person.EstimatedAge,
		FirstDetected:  now.UnixMilli(),
		LastDetected:   now.UnixMilli(),
		DetectionCount: 1,
		SessionIDs:     []string{t.sessionID},
	}
	if err := t.store.Put(ctx, newRec); err != nil {
		return Result{Person: person, Kind: MatchSessionOnly, Similarity: 0},
			fmt.Errorf("persist new person %s: %w", person.ID, err)
	}
	if t.index != nil {
		t.index.Add(newRec)
	}
	return Result{Person: person, Kind: MatchNew, Similarity: 0, Updated: true}, nil
}

// admitFromMemory revives a remembered person into the session and records
// the sighting on their durable record.
func (t *Tracker) admitFromMemory(ctx context.Context, rec *memory.Record, det Detection, sim float64, now time.Time) (Result, error) {
	person, alreadyPresent := t.byID[rec.ID]
	updated := false
	if alreadyPresent {
		// The stored identity is in the session already but the live
		// embedding drifted past the session scan. Treat it like a session
		// re-identification, cooldown included.
		if person.ReadyForUpdate(now, t.cfg.Cooldown) {
			person.RecordAppearance(now)
			updated = true
		}
	} else {
		person = NewPerson(rec.ID, det, t.cfg.ChildAgeMax, now)
		t.addPerson(person)
		updated = true
	}

	_, err := t.store.Update(ctx, rec.ID, func(r *memory.Record) {
		r.Touch(now.UnixMilli(), t.sessionID)
	})
	if err != nil {
		return Result{Person: person, Kind: MatchMemory, Similarity: sim, Updated: updated},
			fmt.Errorf("record sighting for %s: %w", rec.ID, err)
	}
	return Result{Person: person, Kind: MatchMemory, Similarity: sim, Updated: updated}, nil
}

func (t *Tracker) addPerson(p *Person) {
	t.persons = append(t.persons, p)
	t.byID[p.ID] = p
}

// findSessionMatch scans the session list for the single best candidate.
// Returns nil when the best similarity does not strictly exceed the
// threshold.
func (t *Tracker) findSessionMatch(embedding Embedding) (*Person, float64) {
	var best *Person
	bestSim := 0.0
	for _, person := range t.persons {
		sim := Similarity(embedding, person.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = person
		}
	}
	if best == nil || bestSim <= t.cfg.SessionThreshold {
		return nil, bestSim
	}
	return best, bestSim
}

// findMemoryMatch finds the best face memory candidate. With an index
// configured it asks for the nearest few records and verifies each with the
// exact scorer; otherwise (or when the index path fails) it linearly scans
// the whole store, which is the canonical, deterministic path.
func (t *Tracker) findMemoryMatch(ctx context.Context, embedding Embedding) (*memory.Record, float64, error) {
	if t.index != nil && t.index.Count() > 0 {
		if rec, sim, ok := t.findMemoryMatchIndexed(ctx, embedding); ok {
			return rec, sim, nil
		}
	}

	records, err := t.store.ScanAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	var best *memory.Record
	bestSim := 0.0
	for i := range records {
		sim := Similarity(embedding, records[i].Embedding)
		if sim > bestSim {
			bestSim = sim
			best = &records[i]
		}
	}
	if best == nil || bestSim <= t.cfg.MemoryThreshold {
		return nil, bestSim, nil
	}
	return best, bestSim, nil
}

// findMemoryMatchIndexed resolves the lookup through the ANN index. The
// third return value is false when the index could not answer and the
// caller should fall back to the linear scan.
func (t *Tracker) findMemoryMatchIndexed(ctx context.Context, embedding Embedding) (*memory.Record, float64, bool) {
	ids, err := t.index.Search(embedding, memoryCandidates)
	if err != nil {
		return nil, 0, false
	}

	var best *memory.Record
	bestSim := 0.0
	for _, id := range ids {
		rec, err := t.store.Get(ctx, id)
		if err != nil {
			// Index may be ahead of or behind the store; let the scan decide.
			return nil, 0, false
		}
		sim := Similarity(embedding, rec.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = rec
		}
	}
	if best == nil || bestSim <= t.cfg.MemoryThreshold {
		return nil, bestSim, true
	}
	return best, bestSim, true
}
