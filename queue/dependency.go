package queue

import (
	"sort"
	"sync"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// DependencyManager is the DAG owned in memory (C6), mirrored by the task
// queue manager into RecordingProcessingState. It never touches the
// database itself -- Manager is responsible for persistence -- so it can be
// unit tested as a pure state machine (property P4).
type DependencyManager struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	dependents map[string][]string // taskID -> tasks that depend on it
}

func NewDependencyManager() *DependencyManager {
	return &DependencyManager{
		tasks:      map[string]*Task{},
		dependents: map[string][]string{},
	}
}

// AddTask registers t, enforcing invariant I3: every dependency must
// already have been added. Dependencies already completed make t
// immediately eligible for GetReadyTasks on the next call.
func (d *DependencyManager) AddTask(t *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dep := range t.Dependencies {
		if _, ok := d.tasks[dep]; !ok {
			return modelerrors.NonRetryable("queue: dependency manager: forward reference to unknown task "+dep, nil)
		}
	}

	t.Status = StatusPending
	t.CreatedAt = config.Clock.Now()
	if t.MaxRetries == 0 {
		t.MaxRetries = config.DefaultMaxTaskRetries
	}
	d.tasks[t.ID] = t
	for _, dep := range t.Dependencies {
		d.dependents[dep] = append(d.dependents[dep], t.ID)
	}
	return nil
}

// allDepsCompleted reports whether every dependency of id is completed.
// Caller must hold d.mu.
func (d *DependencyManager) allDepsCompleted(t *Task) bool {
	for _, dep := range t.Dependencies {
		depTask, ok := d.tasks[dep]
		if !ok || depTask.Status != StatusComplete {
			return false
		}
	}
	return true
}

// GetReadyTasks scans every pending task, promotes the ones whose
// dependencies are all completed to Ready, and returns them ordered by
// (priority asc, created_at asc) per spec.md §4.5. A task is returned at
// most once: the status flip to Ready means it won't be picked up again.
func (d *DependencyManager) GetReadyTasks() []*Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ready []*Task
	for _, t := range d.tasks {
		if t.Status != StatusPending {
			continue
		}
		if d.allDepsCompleted(t) {
			t.Status = StatusReady
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		wi, wj := ready[i].Priority.Weight(), ready[j].Priority.Weight()
		if wi != wj {
			return wi < wj
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready
}

func (d *DependencyManager) MarkRunning(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tasks[id]; ok {
		t.Status = StatusRunning
		t.StartedAt = config.Clock.Now()
	}
}

// MarkCompleted transitions id to completed and returns the dependent task
// IDs that may now have become ready (for the caller to log/broadcast; the
// next GetReadyTasks call re-evaluates them regardless).
func (d *DependencyManager) MarkCompleted(id string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	if !ok {
		return nil
	}
	t.Status = StatusComplete
	t.CompletedAt = config.Clock.Now()
	t.Progress = 100
	return append([]string{}, d.dependents[id]...)
}

// MarkFailed records a failed attempt. If retries remain, the task goes
// back to pending for the worker pool to retry; otherwise it fails
// terminally and the failure propagates to every dependent (spec.md §4.5,
// scenario S5), recursively, each carrying modelerrors.DependenciesFailedError.
func (d *DependencyManager) MarkFailed(id string, errMsg string) (terminal bool, propagated []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	if !ok {
		return false, nil
	}
	t.RetryCount++
	t.ErrorMsg = errMsg
	if t.RetryCount < t.MaxRetries {
		t.Status = StatusPending
		return false, nil
	}
	t.Status = StatusFailed
	t.CompletedAt = config.Clock.Now()
	return true, d.propagateFailure([]string{id})
}

// propagateFailure walks the dependents of each id in seed transitively,
// failing every one with a DependenciesFailedError that names its direct
// failed dependency. Caller must hold d.mu.
func (d *DependencyManager) propagateFailure(seed []string) []string {
	var affected []string
	queue := append([]string{}, seed...)
	seen := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, depID := range d.dependents[id] {
			if seen[depID] {
				continue
			}
			seen[depID] = true
			t, ok := d.tasks[depID]
			if !ok || t.IsTerminal() {
				continue
			}
			t.Status = StatusFailed
			t.CompletedAt = config.Clock.Now()
			t.ErrorMsg = modelerrors.DependenciesFailedError([]string{id}).Error()
			affected = append(affected, depID)
			queue = append(queue, depID)
		}
	}
	return affected
}

// RetryFailed resets a terminally-failed task back to pending with its
// retry counter cleared, for operator-triggered manual recovery.
func (d *DependencyManager) RetryFailed(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	if !ok || t.Status != StatusFailed {
		return false
	}
	t.Status = StatusPending
	t.RetryCount = 0
	t.ErrorMsg = ""
	return true
}

// Cancel marks id and every transitive dependent as cancelled (spec.md
// §4.5's operator-cancel transition). Sidecars/partial outputs already on
// disk are left untouched.
func (d *DependencyManager) Cancel(id string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	if !ok {
		return nil
	}
	if t.IsTerminal() {
		return nil
	}
	t.Status = StatusCancelled
	t.CompletedAt = config.Clock.Now()
	return d.propagateCancel([]string{id})
}

func (d *DependencyManager) propagateCancel(seed []string) []string {
	var affected []string
	queue := append([]string{}, seed...)
	seen := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, depID := range d.dependents[id] {
			if seen[depID] {
				continue
			}
			seen[depID] = true
			t, ok := d.tasks[depID]
			if !ok || t.IsTerminal() {
				continue
			}
			t.Status = StatusCancelled
			t.CompletedAt = config.Clock.Now()
			affected = append(affected, depID)
			queue = append(queue, depID)
		}
	}
	return affected
}

// Get returns a copy of the task's current state.
func (d *DependencyManager) Get(id string) (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}
