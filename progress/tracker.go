// Package progress implements the Progress Tracker (C4): an in-memory
// registry of tasks split across three keyed maps — active, completed, and
// external (captures owned by the lifecycle manager rather than the worker
// pool) — with throttled change notifications, grounded on the teacher's
// progress.ProgressReporter (clock indirection, bucketed reporting) but
// reshaped around spec.md's task-status model instead of a single scaled
// float.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is overridden in tests for deterministic retention sweeps.
var Clock = clock.New()

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "completed"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

// Entry mirrors the fields the WebSocket fan-out needs for a
// task_status_update / task_progress_update message (spec.md §6).
type Entry struct {
	ID          string
	TaskType    string
	Status      Status
	Progress    int // 0-100
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	ErrorMsg    string
	RetryCount  int
	Payload     map[string]any

	// External marks captures tracked by the lifecycle manager rather than
	// the worker pool. While in flight such entries live in the tracker's
	// separate external map; the flag stays set after the entry moves to
	// completed.
	External bool

	lastNotifiedProgress int
	notified              bool
}

func (e Entry) snapshot() Entry {
	e.lastNotifiedProgress = 0
	e.notified = false
	return e
}

// ChangeKind distinguishes the two notification channels C11 broadcasts.
type ChangeKind int

const (
	ChangeStatus ChangeKind = iota
	ChangeProgress
)

// Notification is delivered to every registered callback on a qualifying
// change (spec.md §4.3: status changes always notify; progress changes
// notify only on >=5pp delta or on reaching 100).
type Notification struct {
	Kind  ChangeKind
	Entry Entry
}

type Stats struct {
	Active    int
	Completed int
	External  int
}

// Tracker is the C4 registry. All map access goes through its methods; no
// external caller reaches into the maps directly.
type Tracker struct {
	mu sync.Mutex

	active    map[string]*Entry
	completed map[string]*Entry
	external  map[string]*Entry

	retention time.Duration
	callbacks []func(Notification)
}

func New(retention time.Duration) *Tracker {
	return &Tracker{
		active:    map[string]*Entry{},
		completed: map[string]*Entry{},
		external:  map[string]*Entry{},
		retention: retention,
	}
}

// RegisterProgressCallback adds a sink invoked synchronously (holding no
// lock) for every qualifying status/progress change across all entries.
func (t *Tracker) RegisterProgressCallback(cb func(Notification)) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// Add registers a new task as active (or external, if isExternal). Calling
// Add again for an existing id replaces its entry with a fresh pending one
// carrying the new payload.
func (t *Tracker) Add(id, taskType string, isExternal bool, payload map[string]any) {
	t.mu.Lock()
	e := &Entry{
		ID:        id,
		TaskType:  taskType,
		Status:    StatusPending,
		CreatedAt: Clock.Now(),
		Payload:   payload,
		External:  isExternal,
	}
	if isExternal {
		t.external[id] = e
	} else {
		t.active[id] = e
	}
	t.mu.Unlock()
	t.notify(Notification{Kind: ChangeStatus, Entry: e.snapshot()})
}

// UpdateStatus transitions the entry's status. Status changes always emit a
// notification (spec.md §4.3). Reaching a terminal status moves the entry
// from active/external into completed (retaining External for C11 display).
func (t *Tracker) UpdateStatus(id string, status Status, errMsg string) {
	t.mu.Lock()
	e := t.find(id)
	if e == nil {
		t.mu.Unlock()
		return
	}
	e.Status = status
	e.ErrorMsg = errMsg
	now := Clock.Now()
	switch status {
	case StatusRunning:
		if e.StartedAt.IsZero() {
			e.StartedAt = now
		}
	case StatusComplete, StatusFailed:
		e.CompletedAt = now
		delete(t.active, id)
		delete(t.external, id)
		t.completed[id] = e
	}
	snap := e.snapshot()
	t.mu.Unlock()
	t.notify(Notification{Kind: ChangeStatus, Entry: snap})
}

// UpdateProgress sets the entry's progress percentage. Per spec.md §4.3 a
// notification only fires when the delta since the last notified value is
// >=5 percentage points, or progress has reached 100.
func (t *Tracker) UpdateProgress(id string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	t.mu.Lock()
	e := t.find(id)
	if e == nil {
		t.mu.Unlock()
		return
	}
	e.Progress = pct
	shouldNotify := pct-e.lastNotifiedProgress >= 5 || pct == 100
	if shouldNotify {
		e.lastNotifiedProgress = pct
		e.notified = true
	}
	snap := e.snapshot()
	t.mu.Unlock()
	if shouldNotify {
		t.notify(Notification{Kind: ChangeProgress, Entry: snap})
	}
}

func (t *Tracker) find(id string) *Entry {
	if e, ok := t.active[id]; ok {
		return e
	}
	if e, ok := t.external[id]; ok {
		return e
	}
	if e, ok := t.completed[id]; ok {
		return e
	}
	return nil
}

// Get returns a copy of the tracked entry and whether it was found.
func (t *Tracker) Get(id string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.find(id)
	if e == nil {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Remove deletes an entry from whichever map holds it (used by the reaper to
// prune stuck external tasks, spec.md scenario S4).
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	delete(t.active, id)
	delete(t.external, id)
	delete(t.completed, id)
	t.mu.Unlock()
}

// Stats returns the current size of each map (spec.md §4.3 `stats`).
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Active: len(t.active), Completed: len(t.completed), External: len(t.external)}
}

// ActiveAndExternal returns a snapshot of every active+external entry,
// ordered by creation time, for recovery scans and periodic snapshots.
func (t *Tracker) ActiveAndExternal() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.active)+len(t.external))
	for _, e := range t.active {
		out = append(out, e.snapshot())
	}
	for _, e := range t.external {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PruneCompleted removes completed entries older than the retention window
// (spec.md §4.3: "Old completed tasks are removed after a configurable
// retention (default 24 h)").
func (t *Tracker) PruneCompleted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := Clock.Now().Add(-t.retention)
	removed := 0
	for id, e := range t.completed {
		if e.CompletedAt.Before(cutoff) {
			delete(t.completed, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) notify(n Notification) {
	t.mu.Lock()
	cbs := append([]func(Notification){}, t.callbacks...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(n)
	}
}
