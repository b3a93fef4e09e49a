package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/fanout"
	"github.com/Serph91P/StreamVault-sub001/ids"
	"github.com/Serph91P/StreamVault-sub001/log"
	"github.com/Serph91P/StreamVault-sub001/metrics"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
	"github.com/Serph91P/StreamVault-sub001/progress"
)

// streamerQueue isolates one streamer's tasks behind its own priority queue
// and a single in-flight slot, so one streamer's backlog never starves
// another's (spec.md §4.6 "per-streamer isolation": a dedicated worker
// drains each streamer's queue independently).
type streamerQueue struct {
	mu      sync.Mutex
	pending *priorityQueue
	running bool
}

// Manager is the Task Queue Manager (C7): it owns the DependencyManager
// (C6), routes ready tasks into per-streamer queues, and runs them through
// the worker pool (C5) with bounded global concurrency. Grounded on the
// teacher's balancer dispatch loop (per-key channel + bounded worker count),
// generalized from a fixed worker count to a semaphore so the concurrency
// cap applies across however many streamer queues currently exist.
type Manager struct {
	gw       *db.Gateway
	dep      *DependencyManager
	tracker  *progress.Tracker
	registry *Registry
	hub      *fanout.Hub
	metrics  *metrics.CoreMetrics

	mu        sync.Mutex
	streamers map[string]*streamerQueue

	sem *semaphore.Weighted

	orphanMu      sync.Mutex
	orphanInFlight int

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewManager(gw *db.Gateway, tracker *progress.Tracker, registry *Registry, hub *fanout.Hub, m *metrics.CoreMetrics) *Manager {
	return &Manager{
		gw:        gw,
		dep:       NewDependencyManager(),
		tracker:   tracker,
		registry:  registry,
		hub:       hub,
		metrics:   m,
		streamers: map[string]*streamerQueue{},
		sem:       semaphore.NewWeighted(int64(config.MaxConcurrentStreamers * config.MaxWorkersPerStreamer)),
		stop:      make(chan struct{}),
	}
}

// Run starts the dependency-promotion loop and the periodic stats
// broadcaster; it returns immediately, both loops running in their own
// goroutines until Shutdown is called.
func (m *Manager) Run(ctx context.Context) {
	m.wg.Add(2)
	go m.promoteLoop(ctx)
	go m.statsLoop(ctx)
}

func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Manager) promoteLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(config.DependencyWorkerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.promote(ctx)
		}
	}
}

func (m *Manager) statsLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(config.QueueStatsBroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.broadcastStats()
		}
	}
}

func (m *Manager) broadcastStats() {
	if m.hub == nil {
		return
	}
	stats := m.tracker.Stats()
	m.hub.Broadcast(fanout.Message{
		Type: fanout.TypeQueueStatsUpdate,
		Data: fanout.QueueStatsPayload{Active: stats.Active, Completed: stats.Completed, External: stats.External},
	}, true)

	if m.metrics != nil {
		m.mu.Lock()
		m.metrics.ActiveStreamerCount.Set(float64(len(m.streamers)))
		for name, sq := range m.streamers {
			sq.mu.Lock()
			depth := sq.pending.Len()
			sq.mu.Unlock()
			m.metrics.QueueDepth.WithLabelValues(name).Set(float64(depth))
		}
		m.mu.Unlock()
	}
}

// promote pulls every task whose dependencies are now satisfied and pushes
// each into its streamer's priority queue, then kicks a worker for any
// streamer queue that isn't already draining.
func (m *Manager) promote(ctx context.Context) {
	ready := m.dep.GetReadyTasks()
	for _, t := range ready {
		key := t.Payload.StreamerKey()
		sq := m.streamerQueueFor(key)
		sq.mu.Lock()
		heapPush(sq.pending, t)
		shouldStart := !sq.running
		if shouldStart {
			sq.running = true
		}
		sq.mu.Unlock()
		if shouldStart {
			m.wg.Add(1)
			go m.drain(ctx, key, sq)
		}
	}
}

func (m *Manager) streamerQueueFor(key string) *streamerQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	sq, ok := m.streamers[key]
	if !ok {
		sq = &streamerQueue{pending: newPriorityQueue()}
		m.streamers[key] = sq
	}
	return sq
}

// drain runs every task currently queued for one streamer, one at a time,
// until the queue empties; it then marks the queue idle so the next
// promote() call that adds work restarts a fresh drain goroutine.
func (m *Manager) drain(ctx context.Context, streamerKey string, sq *streamerQueue) {
	defer m.wg.Done()
	for {
		sq.mu.Lock()
		if sq.pending.Len() == 0 {
			sq.running = false
			sq.mu.Unlock()
			return
		}
		t := heapPop(sq.pending)
		sq.mu.Unlock()

		if err := m.sem.Acquire(ctx, 1); err != nil {
			return
		}
		m.runTask(ctx, t)
		m.sem.Release(1)
	}
}

// runTask executes one task's handler with retry, then updates the
// dependency manager and broadcasts the outcome -- the C5 worker-pool loop
// of spec.md §4.4. Maintenance-class throttling (orphan-recovery-check) is
// enforced at enqueue time by EnqueueOrphanCheck, not here -- by the time a
// task reaches runTask it has already reserved its in-flight slot.
func (m *Manager) runTask(ctx context.Context, t *Task) {
	fn, ok := m.registry.lookup(t.Type)
	if !ok {
		m.finishTask(t, modelerrors.NonRetryable("queue: no handler registered for task type "+t.Type, nil))
		return
	}

	m.dep.MarkRunning(t.ID)
	m.tracker.UpdateStatus(t.ID, progress.StatusRunning, "")

	start := config.Clock.Now()
	_, err := runWithRetry(ctx, t.MaxRetries, func(attempt int) error {
		if attempt > 0 {
			m.tracker.UpdateStatus(t.ID, progress.StatusRetrying, "")
		}
		return fn(ctx, t.Payload, func(pct int) { m.tracker.UpdateProgress(t.ID, pct) })
	})
	if m.metrics != nil {
		m.metrics.TaskDurationSeconds.WithLabelValues(t.Type).Observe(config.Clock.Now().Sub(start).Seconds())
	}

	m.finishTask(t, err)
}

func (m *Manager) finishTask(t *Task, err error) {
	if err != nil {
		terminal, propagated := m.dep.MarkFailed(t.ID, err.Error())
		if !terminal {
			m.tracker.UpdateStatus(t.ID, progress.StatusPending, err.Error())
			return
		}
		m.releaseOrphanSlot(t)
		m.tracker.UpdateStatus(t.ID, progress.StatusFailed, err.Error())
		if m.metrics != nil {
			m.metrics.TasksFailed.WithLabelValues(t.Type).Inc()
		}
		m.broadcast(fanout.Message{
			Type: fanout.TypeTaskStatusUpdate,
			Data: fanout.TaskStatusPayload{TaskID: t.ID, TaskType: t.Type, Status: string(progress.StatusFailed), ErrorMsg: err.Error()},
		})
		for _, depID := range propagated {
			if dt, ok := m.dep.Get(depID); ok {
				m.tracker.UpdateStatus(dt.ID, progress.StatusFailed, dt.ErrorMsg)
				m.broadcast(fanout.Message{
					Type: fanout.TypeTaskStatusUpdate,
					Data: fanout.TaskStatusPayload{TaskID: dt.ID, TaskType: dt.Type, Status: string(progress.StatusFailed), ErrorMsg: dt.ErrorMsg},
				})
			}
		}
		return
	}

	m.releaseOrphanSlot(t)
	dependents := m.dep.MarkCompleted(t.ID)
	m.tracker.UpdateStatus(t.ID, progress.StatusComplete, "")
	if m.metrics != nil {
		m.metrics.TasksCompleted.WithLabelValues(t.Type).Inc()
	}
	m.broadcast(fanout.Message{
		Type: fanout.TypeTaskStatusUpdate,
		Data: fanout.TaskStatusPayload{TaskID: t.ID, TaskType: t.Type, Status: string(progress.StatusComplete)},
	})
	log.Log("", "queue: task completed", "task_id", t.ID, "task_type", t.Type, "dependents_unblocked", len(dependents))
}

func (m *Manager) broadcast(msg fanout.Message) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast(msg, false)
}

func (m *Manager) releaseOrphanSlot(t *Task) {
	if t.Payload.Kind != KindOrphanRecoveryCheck {
		return
	}
	m.orphanMu.Lock()
	m.orphanInFlight--
	m.orphanMu.Unlock()
}

// EnqueueTask registers a standalone task (no dependencies) with the
// dependency manager and the progress tracker.
func (m *Manager) EnqueueTask(taskType string, priority Priority, payload Payload) (string, error) {
	return m.enqueue(taskType, priority, payload, nil)
}

// SentinelOrphanCheckThrottled is returned by EnqueueOrphanCheck in place of
// a real task ID when the in-flight cap is already saturated (spec.md §4.6,
// property P10: "a 4th concurrent enqueue returns a sentinel id and does NOT
// start work"). It is never a valid task ID, so callers can compare against
// it directly instead of tracking a separate ok flag.
const SentinelOrphanCheckThrottled = "sentinel:orphan-check-throttled"

// EnqueueOrphanCheck enqueues a KindOrphanRecoveryCheck task, rate-limited
// to config.MaxOrphanCheckTasksInFlight concurrent in-flight checks (C7's
// "rate-limiting noisy maintenance task types" responsibility). The
// in-flight slot is reserved here, at enqueue time, and released in
// finishTask once the task reaches a terminal state -- over-cap callers
// never register work at all.
func (m *Manager) EnqueueOrphanCheck(payload Payload) (string, error) {
	payload.Kind = KindOrphanRecoveryCheck

	m.orphanMu.Lock()
	if m.orphanInFlight >= config.MaxOrphanCheckTasksInFlight {
		m.orphanMu.Unlock()
		return SentinelOrphanCheckThrottled, nil
	}
	m.orphanInFlight++
	m.orphanMu.Unlock()

	id, err := m.enqueue(string(KindOrphanRecoveryCheck), PriorityLow, payload, nil)
	if err != nil {
		m.orphanMu.Lock()
		m.orphanInFlight--
		m.orphanMu.Unlock()
		return "", err
	}
	return id, nil
}

func (m *Manager) enqueue(taskType string, priority Priority, payload Payload, deps []string) (string, error) {
	t := &Task{
		ID:           ids.NewTaskID(),
		Type:         taskType,
		Priority:     priority,
		Payload:      payload,
		Dependencies: deps,
	}
	if err := m.dep.AddTask(t); err != nil {
		return "", err
	}
	m.tracker.Add(t.ID, taskType, false, map[string]any{"recording_id": payload.RecordingID, "step": payload.Step})
	return t.ID, nil
}

// postProcessSteps is the fixed DAG order spec.md §4.8 defines: concat
// (only when segments exist -- the handler itself takes the fast path when
// they don't) feeds metadata, which feeds remux, validate, thumbnail,
// cleanup in sequence.
var postProcessSteps = []string{"concat", "metadata", "remux", "validate", "thumbnail", "cleanup"}

// EnqueueRecordingPostProcessing builds the full six-step DAG for one
// recording, each step depending on the previous one's task ID, and returns
// the task IDs in DAG order.
func (m *Manager) EnqueueRecordingPostProcessing(rec db.Recording, streamerName string) ([]string, error) {
	taskIDs := make([]string, 0, len(postProcessSteps))
	var prev string
	for _, step := range postProcessSteps {
		payload := Payload{
			Kind:         KindPostProcessStep,
			RecordingID:  rec.ID,
			StreamID:     rec.StreamID,
			StreamerID:   rec.StreamerID,
			StreamerName: streamerName,
			Step:         step,
		}
		var deps []string
		if prev != "" {
			deps = []string{prev}
		}
		taskID, err := m.enqueue("postprocess_step", PriorityNormal, payload, deps)
		if err != nil {
			return taskIDs, err
		}
		if err := m.gw.CreateProcessingState(context.Background(), rec.ID, step); err != nil {
			return taskIDs, modelerrors.Retryable("queue: persisting initial processing state failed", err)
		}
		taskIDs = append(taskIDs, taskID)
		prev = taskID
	}
	return taskIDs, nil
}

func heapPush(pq *priorityQueue, t *Task) {
	heap.Push(pq, t)
}

func heapPop(pq *priorityQueue) *Task {
	return heap.Pop(pq).(*Task)
}
