// Package fanout is the WebSocket Fan-Out (C11): a gorilla/websocket
// Hub/Client pair that pushes task and recording state changes to every
// connected dashboard client, coalescing repeat snapshots by content hash
// so an unchanged queue-stats tick never gets resent. Grounded on
// Livepeer-FrameWorks-monorepo's api_realtime websocket.Hub (register/
// unregister/broadcast channel shape, ping/pong keepalive).
package fanout

import "time"

type MessageType string

const (
	TypeTaskStatusUpdate     MessageType = "task_status_update"
	TypeTaskProgressUpdate   MessageType = "task_progress_update"
	TypeQueueStatsUpdate     MessageType = "queue_stats_update"
	TypeBackgroundQueueUpdate MessageType = "background_queue_update"
	TypeRecordingStarted     MessageType = "recording.started"
	TypeRecordingStopped     MessageType = "recording.stopped"
	TypeRecordingFailed      MessageType = "recording.failed"
	TypeRecordingCompleted   MessageType = "recording.completed"
	TypeRecordingProgress    MessageType = "recording.progress"
)

// Message is the single envelope every broadcast uses, serialized to JSON
// over the wire (spec.md §6).
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type TaskStatusPayload struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
	Status   string `json:"status"`
	ErrorMsg string `json:"error_message,omitempty"`
}

type TaskProgressPayload struct {
	TaskID   string `json:"task_id"`
	Progress int    `json:"progress"`
}

type QueueStatsPayload struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	External  int `json:"external"`
}

// RecordingEventPayload backs every recording.started|stopped|failed|completed
// broadcast (spec.md §6); fields irrelevant to a given event are left zero
// and omitted from the wire form.
type RecordingEventPayload struct {
	RecordingID int64   `json:"recording_id"`
	StreamID    int64   `json:"stream_id"`
	StreamerID  int64   `json:"streamer_id"`
	FilePath    string  `json:"file_path,omitempty"`
	FileSize    int64   `json:"file_size,omitempty"`
	Progress    int     `json:"progress,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// RecordingProgressPayload drives the dashboard's live capture duration
// display (spec.md §6 recording.progress), broadcast on the monitor's
// periodic tick rather than on every heartbeat.
type RecordingProgressPayload struct {
	RecordingID     int64   `json:"recording_id"`
	StreamerID      int64   `json:"streamer_id"`
	DurationSeconds float64 `json:"duration_seconds"`
}
