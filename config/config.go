// Package config holds the tunables for every core component, following the
// teacher's pattern of package-level vars with sane defaults plus a Clock
// indirection for deterministic tests. Values here are read by Load (see
// loader.go) from environment variables or an optional YAML file; nothing in
// the core consumes secrets directly — credentials stay in GlobalSettings,
// decrypted on demand by db.Crypto.
package config

import "time"

var Version string

// Used so tests can generate fixed timestamps instead of time.Now().
var Clock TimestampGenerator = RealTimestampGenerator{}

// Root directory recordings are written under (see spec.md §6 on-disk layout).
var RecordingsRoot = "/recordings"

// --- cmd/streamvault-core wiring (ambient: connection strings and listen
// addresses, never business logic) ---

// DatabaseDSN is the lib/pq connection string passed to db.Open.
var DatabaseDSN string

// MetricsAddr is where metrics.ListenAndServe exposes /metrics.
var MetricsAddr = "127.0.0.1:9090"

// CaptureLogDir is the directory subprocess.Supervisor writes rotated
// per-streamer capture/remux logs under.
var CaptureLogDir = "/recordings/logs"

// PlaybackURLTemplate configures platform.StaticClient when no real
// platform client is wired (spec.md §1: platform API clients out of scope).
var PlaybackURLTemplate string

// --- C2 Process Supervisor ---

// Default minimum valid output size for a capture/remux result.
const MinOutputFileSizeBytes = 1024 // 1 KiB

// How long to wait after the graceful termination signal before force-killing.
var CaptureGracefulTimeout = 15 * time.Second

// Timeout to confirm a spawned child process actually attached.
var ProcessAttachTimeout = 30 * time.Second

// Log rotation limits for per-streamer capture/remux child output.
const MaxLogFileSizeBytes = 10 * 1024 * 1024 // 10 MiB
const MaxLogFilesPerStreamer = 5

// --- C3 Database Gateway ---

const DBMaxRetryAttempts = 5

var DBRetryBaseDelay = 500 * time.Millisecond
var DBRetryMaxDelay = 10 * time.Second

var DBConnMaxLifetime = 30 * time.Minute
const DBApplicationName = "streamvault-core"

// --- C4 Progress Tracker ---

var CompletedTaskRetention = 24 * time.Hour
const ProgressNotifyThresholdPct = 5

// --- C5/C6/C7 Queue ---

const DefaultMaxTaskRetries = 3

var WorkerPollInterval = 1 * time.Second
var WorkerBackoffCap = 60 * time.Second

const MaxWorkersPerStreamer = 4
const MaxConcurrentStreamers = 15
const MaxOrphanCheckTasksInFlight = 3

var DependencyWorkerTick = 100 * time.Millisecond
var QueueStatsBroadcastInterval = 10 * time.Second

// --- C8 Recording Lifecycle Manager ---

var MaxConcurrentRecordings = 8
var RecordingMonitorInterval = 10 * time.Second

// --- C9 Post-Processing Pipeline ---

var ConcatTimeout = 10 * time.Minute
var RemuxTimeout = 10 * time.Minute
const MaxChapterCues = 20
const ChapterIntervalSecs = 600 // 10 minutes

// --- C10 Recovery Subsystem ---

var ReaperInterval = 30 * time.Second
var StuckCaptureCompletedThreshold = 5 * time.Minute
var StuckTaskAgeThreshold = 10 * time.Minute
var StaleHeartbeatThreshold = 5 * time.Minute
var OrphanCheckTaskMaxAge = 2 * time.Minute

// --- C11 WebSocket Fan-Out ---

var SnapshotBroadcastInterval = 10 * time.Second
const WebSocketSendBuffer = 256

// --- C12 Session/Token Cleanup ---

var SessionMaxAge = 24 * time.Hour
var SessionCleanupInterval = 60 * time.Minute
var ShareTokenCleanupInterval = 15 * time.Minute

// --- ActiveRecordingState heartbeats ---

var HeartbeatInterval = 60 * time.Second
var HeartbeatStaleAfter = 5 * time.Minute
