// Package session drives the detection cadence. The controller owns the
// Idle/Running/Stopped state machine, fires the match-and-merge engine on a
// fixed tick, and keeps the session snapshot on disk.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-counter/internal/detector"
	"github.com/kozaktomas/face-counter/internal/observability"
	"github.com/kozaktomas/face-counter/internal/tracking"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Controller orchestrates one observation run at a time.
//
// Ticks are gated by a boolean in-flight guard: when processing of one tick
// is still running as the next fires, the new tick is dropped, never
// queued. A known missed-frame rate under slow detection hardware is
// acceptable; a backlog is not.
type Controller struct {
	tracker   *tracking.Tracker
	det       detector.Detector
	snapshots *SnapshotStore
	metrics   *observability.Metrics
	interval  time.Duration

	mu        sync.Mutex
	state     State
	data      *Data
	sessionID string
	status    string
	cancel    context.CancelFunc
	done      chan struct{}
	listeners map[chan tracking.SessionStats]struct{}

	busy atomic.Bool

	now func() time.Time
}

// NewController wires the controller. If a snapshot from a previous run
// exists it becomes the initial session data, so its summary can still be
// inspected and exported; the next start discards it.
func NewController(
	tracker *tracking.Tracker,
	det detector.Detector,
	snapshots *SnapshotStore,
	metrics *observability.Metrics,
	interval time.Duration,
) *Controller {
	c := &Controller{
		tracker:   tracker,
		det:       det,
		snapshots: snapshots,
		metrics:   metrics,
		interval:  interval,
		state:     StateIdle,
		status:    "Ready",
		listeners: make(map[chan tracking.SessionStats]struct{}),
		now:       time.Now,
	}
	c.data = &Data{StartTime: c.now()}

	if snapshots != nil {
		saved, err := snapshots.Load()
		if err != nil {
			log.Printf("Ignoring unreadable session snapshot: %v", err)
		} else if saved != nil {
			c.data = saved
			c.status = fmt.Sprintf("Restored previous session with %d person(s)", len(saved.Persons))
		}
	}
	return c
}

func generateSessionID() string {
	return "session_" + uuid.NewString()
}

// Start begins a new session: fresh person list, fresh session id, any
// previous snapshot discarded. Valid from Idle or Stopped. Face memory is
// never cleared by starting a session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return errors.New("session already running")
	}

	if c.snapshots != nil {
		if err := c.snapshots.Discard(); err != nil {
			log.Printf("Failed to discard old snapshot: %v", err)
		}
	}

	c.sessionID = generateSessionID()
	c.tracker.Reset(c.sessionID)
	c.data = &Data{StartTime: c.now()}
	c.state = StateRunning
	c.status = "New session started - waiting for faces"

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(loopCtx, c.done)

	return nil
}

// Stop tears down the tick loop and stamps the end time. In-flight face
// memory writes are allowed to finish after the stop; memory outlives
// sessions by design.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return errors.New("no session running")
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.state = StateStopped
	c.data.EndTime = &now
	c.status = "Session stopped"
	c.saveSnapshotLocked()
	return nil
}

// NewSession returns a stopped controller to Idle, clearing the retained
// session data and its snapshot. Face memory is untouched.
func (c *Controller) NewSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return errors.New("stop the session first")
	}
	c.data = &Data{StartTime: c.now()}
	c.state = StateIdle
	c.status = "Ready"
	if c.snapshots != nil {
		if err := c.snapshots.Discard(); err != nil {
			return err
		}
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the human-readable one-line status of the loop.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the id of the current (or last) session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Snapshot returns a copy of the current session data.
func (c *Controller) Snapshot() Data {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := Data{
		Persons:   append([]*tracking.Person(nil), c.data.Persons...),
		Stats:     c.data.Stats,
		StartTime: c.data.StartTime,
	}
	if c.data.EndTime != nil {
		end := *c.data.EndTime
		copied.EndTime = &end
	}
	return copied
}

// AddListener subscribes to per-tick stats updates. Slow listeners miss
// updates instead of blocking the loop.
func (c *Controller) AddListener() chan tracking.SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan tracking.SessionStats, 8)
	c.listeners[ch] = struct{}{}
	return ch
}

// RemoveListener unsubscribes a listener channel.
func (c *Controller) RemoveListener(ch chan tracking.SessionStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, ch)
	close(ch)
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.busy.CompareAndSwap(false, true) {
				// Previous tick still in flight: drop this one.
				c.metrics.TicksSkipped.Inc()
				continue
			}
			go func() {
				defer c.busy.Store(false)
				c.processTick(ctx)
			}()
		}
	}
}

// processTick runs one detection pass. It never panics the loop: detector
// failures count as zero-detection ticks, store failures degrade to
// session-only tracking inside the engine.
func (c *Controller) processTick(ctx context.Context) {
	started := time.Now()
	c.metrics.TicksTotal.Inc()
	defer func() {
		c.metrics.ObserveTickDuration(time.Since(started))
	}()

	detections, err := c.det.Detect(ctx)
	if err != nil {
		c.metrics.DetectorErrors.Inc()
		log.Printf("Detector error, treating tick as empty: %v", err)
		c.setStatus("Detection error - retrying")
		return
	}
	if len(detections) == 0 {
		c.setStatus("Waiting for faces...")
		return
	}

	results, procErr := c.tracker.Process(ctx, toTrackingDetections(detections))
	if procErr != nil {
		c.metrics.StoreErrors.Inc()
		log.Printf("Face memory degraded: %v", procErr)
	}

	newPersons := 0
	for _, res := range results {
		c.metrics.DetectionsTotal.WithLabelValues(string(res.Kind)).Inc()
		if res.Kind == tracking.MatchNew {
			newPersons++
		}
	}

	persons := c.tracker.Persons()
	stats := tracking.CalculateStats(persons)
	c.metrics.UniquePersons.Set(float64(stats.UniquePersons))

	c.mu.Lock()
	c.data.Persons = persons
	c.data.Stats = stats
	if newPersons > 0 {
		c.status = fmt.Sprintf("%d new person(s), session total %d", newPersons, stats.UniquePersons)
	} else {
		c.status = fmt.Sprintf("Tracking %d unique person(s) this session", stats.UniquePersons)
	}
	c.saveSnapshotLocked()
	c.notifyLocked(stats)
	c.mu.Unlock()
}

func toTrackingDetections(detections []detector.Detection) []tracking.Detection {
	converted := make([]tracking.Detection, 0, len(detections))
	for _, d := range detections {
		converted = append(converted, tracking.Detection{
			Embedding: d.Embedding,
			Gender:    tracking.ParseGender(d.Gender),
			Age:       d.Age,
		})
	}
	return converted
}

func (c *Controller) setStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// saveSnapshotLocked persists the session slot; the caller holds c.mu.
// Only sessions worth restoring are written (running, or with persons).
func (c *Controller) saveSnapshotLocked() {
	if c.snapshots == nil {
		return
	}
	if c.state != StateRunning && len(c.data.Persons) == 0 {
		return
	}
	if err := c.snapshots.Save(c.data); err != nil {
		log.Printf("Failed to save session snapshot: %v", err)
	}
}

// notifyLocked fans the fresh stats out to listeners; the caller holds c.mu.
func (c *Controller) notifyLocked(stats tracking.SessionStats) {
	for ch := range c.listeners {
		select {
		case ch <- stats:
		default:
		}
	}
}
