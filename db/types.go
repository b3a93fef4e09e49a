// Package db is the Database Gateway (C3): typed accessors over the
// Postgres schema backing the data model in spec.md §3, wrapping every
// query in a retry policy for transient failures (lib/pq connection resets,
// serialization failures) and decrypting proxy credentials on read via
// Crypto. Grounded on the teacher's lib/pq usage in its balancer store and
// cenkalti/backoff retry shape used elsewhere in catalyst-api.
package db

import "time"

type Streamer struct {
	ID         int64
	Username   string
	TwitchID   string
	DisplayName string
	CreatedAt  time.Time
}

type Stream struct {
	ID         int64
	StreamerID int64
	Title       string
	Category    string
	Language    string
	StartedAt  time.Time
	EndedAt    *time.Time
}

type RecordingStatus string

const (
	RecordingStatusRecording  RecordingStatus = "recording"
	RecordingStatusStopped    RecordingStatus = "stopped"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusCompleted  RecordingStatus = "completed"
	RecordingStatusFailed     RecordingStatus = "failed"
)

type Recording struct {
	ID              int64
	StreamID        int64
	StreamerID      int64
	EpisodeNumber   int
	Status          RecordingStatus
	RawPath         string
	FinalPath       string
	FailureReason   string
	DurationSeconds float64
	FileSizeBytes   int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActiveRecordingState is the durable record of an in-progress capture,
// re-read at startup by the recovery subsystem (C10) to detect orphans.
type ActiveRecordingState struct {
	RecordingID   int64
	StreamerID    int64
	ProcessID     string
	OutputPath    string
	StartedAt     time.Time
	LastHeartbeat time.Time
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// RecordingProcessingState is the idempotency gate the queue manager reads
// before executing a post-processing step (spec.md §4.6), keyed on
// (recording_id, step).
type RecordingProcessingState struct {
	RecordingID int64
	Step        string
	Status      StepStatus
	TaskID      string
	UpdatedAt   time.Time
}

// StreamMetadata is the sidecar path registry (spec.md §3): once a path is
// recorded here the corresponding file is expected to exist on disk
// (invariant I2).
type StreamMetadata struct {
	RecordingID     int64
	Title           string
	Category        string
	StartedAt       time.Time
	EndedAt         time.Time
	ChapterJSON     string
	VTTPath         string
	ChapterFFMetaPath string
	NFOPath         string
	ThumbnailPath   string
	SegmentsDir     string
	SegmentsRemoved bool
}

type ShareToken struct {
	Token       string
	RecordingID int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ProxySettings holds an optional capture-time HTTP proxy; Password is
// stored encrypted at rest and decrypted by the gateway on read.
type ProxySettings struct {
	StreamerID int64
	URL        string
	Username   string
	Password   string
}

type GlobalSettings struct {
	EncryptionKeyB64 string
}

type StreamerRecordingSettings struct {
	StreamerID     int64
	Quality        string
	CodecList      []string
	ProxyEnabled   bool
}
