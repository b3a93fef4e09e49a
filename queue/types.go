// Package queue implements the Worker Pool (C5), Dependency Manager (C6),
// and Task Queue Manager (C7): a DAG-ordered, per-streamer-isolated task
// queue with retry and progress tracking. Grounded on the teacher's
// balancer/scheduler shape for the priority-queue-per-key pattern, and on
// Livepeer-FrameWorks-monorepo's worker-pool package for the retry/backoff
// loop structure.
package queue

import "time"

// Priority mirrors spec.md §3's QueueTask.priority enum. Weight() gives the
// ascending sort key a min-heap uses, so "higher priority first" becomes
// "lower weight first".
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusReady    Status = "ready"
	StatusRunning  Status = "running"
	StatusComplete Status = "completed"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
	StatusCancelled Status = "cancelled"
)

// Task is the unit the worker pool executes and the dependency manager
// schedules. It folds spec.md's QueueTask and DependencyTask into one type
// (Design Notes redesign item 4's "eliminate duplicate code paths" applied
// symmetrically to the queue side): a task with no Dependencies behaves
// exactly like a bare QueueTask, becoming ready the instant it's added.
type Task struct {
	ID          string
	Type        string
	Priority    Priority
	Payload     Payload
	Status      Status
	Dependencies []string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	ErrorMsg    string
	RetryCount  int
	MaxRetries  int
	Progress    int
}

func (t Task) IsTerminal() bool {
	switch t.Status {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
