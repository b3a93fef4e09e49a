package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/fanout"
	"github.com/Serph91P/StreamVault-sub001/log"
	"github.com/Serph91P/StreamVault-sub001/metrics"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
	"github.com/Serph91P/StreamVault-sub001/platform"
	"github.com/Serph91P/StreamVault-sub001/progress"
	"github.com/Serph91P/StreamVault-sub001/queue"
	"github.com/Serph91P/StreamVault-sub001/subprocess"
)

// Supervisor is the subset of *subprocess.Supervisor the lifecycle manager
// needs; accepting the interface rather than the concrete type lets tests
// exercise StartRecording/StopRecording without spawning a real ffmpeg.
type Supervisor interface {
	StartCapture(ctx context.Context, streamerName, streamURL, outputPath, quality string, codecList []string, proxyURL string) (string, error)
	Terminate(processID string) bool
	IsActive(processID string) bool
	ProgressOf(processID string) (subprocess.Progress, bool)
}

var (
	// ErrAtCapacity is returned by StartRecording/ForceStart when the number
	// of recordings already in progress meets config.MaxConcurrentRecordings
	// (spec.md §4.7 start path, property P9). No Recording row is created.
	ErrAtCapacity = errors.New("recording: at capacity")
	// ErrAlreadyRecording guards force_start against double-starting a
	// streamer that already has a live capture.
	ErrAlreadyRecording = errors.New("recording: streamer already has an active capture")
	// ErrShuttingDown is returned once graceful_shutdown has begun.
	ErrShuttingDown = errors.New("recording: refusing new start during shutdown")
)

// capture is the in-memory bookkeeping the lifecycle manager keeps per
// active recording, alongside the durable ActiveRecordingState row.
type capture struct {
	processID    string
	streamID     int64
	streamerID   int64
	streamerName string
	rawPath      string
	stopMonitor  chan struct{}
}

// Manager is the Recording Lifecycle Manager (C8): the per-stream state
// machine wrapping the process supervisor (C2), the progress tracker (C4),
// the task queue (C5/C6/C7) and the WebSocket fan-out (C11).
type Manager struct {
	gw       *db.Gateway
	sup      Supervisor
	tracker  *progress.Tracker
	queue    *queue.Manager
	hub      *fanout.Hub
	metrics  *metrics.CoreMetrics
	platform platform.Client

	// usernameCache memoizes the usernames streamerUsername looks up;
	// entries expire after 10 minutes, grounded on log.loggerCache's
	// patrickmn/go-cache usage.
	usernameCache *gocache.Cache

	// episodes memoizes NextEpisodeNumber lookups per (streamer, month);
	// see episode_cache.go.
	episodes *episodeCache

	mu           sync.Mutex
	active       map[int64]*capture // recordingID -> capture
	shuttingDown bool

	wg sync.WaitGroup
}

func NewManager(gw *db.Gateway, sup Supervisor, tracker *progress.Tracker, q *queue.Manager, hub *fanout.Hub, m *metrics.CoreMetrics, plat platform.Client) *Manager {
	return &Manager{
		gw:            gw,
		sup:           sup,
		tracker:       tracker,
		queue:         q,
		hub:           hub,
		metrics:       m,
		platform:      plat,
		usernameCache: gocache.New(10*time.Minute, 10*time.Minute),
		episodes:      newEpisodeCache(),
		active:        map[int64]*capture{},
	}
}

func (m *Manager) broadcast(msg fanout.Message) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast(msg, false)
}

func (m *Manager) streamerUsername(ctx context.Context, streamerID int64) (string, error) {
	key := fmt.Sprintf("%d", streamerID)
	if v, ok := m.usernameCache.Get(key); ok {
		return v.(string), nil
	}
	s, err := m.gw.GetStreamerByID(ctx, streamerID)
	if err != nil {
		return "", err
	}
	m.usernameCache.Set(key, s.Username, gocache.DefaultExpiration)
	return s.Username, nil
}

// StartRecording implements spec.md §4.7's start path: validate capacity,
// assign the monthly episode number and path, start the capture child, and
// register it as an external task so the dashboard sees it immediately.
func (m *Manager) StartRecording(ctx context.Context, streamID int64) (db.Recording, error) {
	m.mu.Lock()
	down := m.shuttingDown
	m.mu.Unlock()
	if down {
		return db.Recording{}, ErrShuttingDown
	}

	stream, err := m.gw.GetStream(ctx, streamID)
	if err != nil {
		return db.Recording{}, modelerrors.Retryable("recording: loading stream failed", err)
	}

	active, err := m.gw.CountActiveRecordings(ctx)
	if err != nil {
		return db.Recording{}, modelerrors.Retryable("recording: checking capacity failed", err)
	}
	if active >= config.MaxConcurrentRecordings {
		return db.Recording{}, ErrAtCapacity
	}

	streamer, err := m.gw.GetStreamerByID(ctx, stream.StreamerID)
	if err != nil {
		return db.Recording{}, modelerrors.Retryable("recording: loading streamer failed", err)
	}

	yyyymm := fmt.Sprintf("%04d%02d", stream.StartedAt.Year(), int(stream.StartedAt.Month()))
	episode, err := m.episodes.next(ctx, m.gw, stream.StreamerID, yyyymm)
	if err != nil {
		return db.Recording{}, modelerrors.Retryable("recording: assigning episode number failed", err)
	}

	p := buildEpisodePath(streamer.Username, stream.Title, stream.StartedAt, episode)
	if err := ensureDir(p.dir); err != nil {
		return db.Recording{}, modelerrors.Retryable("recording: creating season directory failed", err)
	}
	rawPath := p.rawPath()

	recID, err := m.gw.CreateRecording(ctx, db.Recording{
		StreamID:      streamID,
		StreamerID:    stream.StreamerID,
		EpisodeNumber: episode,
		Status:        db.RecordingStatusRecording,
		RawPath:       rawPath,
	})
	if err != nil {
		return db.Recording{}, modelerrors.Retryable("recording: creating recording row failed", err)
	}

	playbackURL, err := m.platform.PlaybackURL(ctx, streamer.Username)
	if err != nil {
		m.gw.SetRecordingError(ctx, recID, "playback_url_unresolved")
		return db.Recording{}, modelerrors.OperatorVisible("playback_url_unresolved", "recording: resolving playback URL failed", err)
	}

	settings, err := m.gw.GetRecordingSettings(ctx, stream.StreamerID)
	if err != nil {
		settings = db.StreamerRecordingSettings{Quality: "best", CodecList: []string{"copy"}}
	}
	var proxyURL string
	if settings.ProxyEnabled {
		if proxy, perr := m.gw.GetProxySettings(ctx, stream.StreamerID); perr == nil {
			proxyURL = proxy.URL
		}
	}

	processID, err := m.sup.StartCapture(ctx, streamer.Username, playbackURL, rawPath, settings.Quality, settings.CodecList, proxyURL)
	if err != nil {
		m.gw.SetRecordingError(ctx, recID, "capture_start_failed")
		return db.Recording{}, modelerrors.Retryable("recording: starting capture failed", err)
	}

	now := config.Clock.Now()
	if err := m.gw.UpsertActiveRecording(ctx, db.ActiveRecordingState{
		RecordingID: recID, StreamerID: stream.StreamerID, ProcessID: processID,
		OutputPath: rawPath, StartedAt: now, LastHeartbeat: now,
	}); err != nil {
		log.LogError("", "recording: persisting active state failed", err, "recording_id", recID)
	}

	m.tracker.Add(processID, "capture", true, map[string]any{
		"recording_id": recID, "stream_id": streamID, "streamer_id": stream.StreamerID, "streamer_name": streamer.Username,
	})

	cp := &capture{
		processID: processID, streamID: streamID, streamerID: stream.StreamerID,
		streamerName: streamer.Username, rawPath: rawPath, stopMonitor: make(chan struct{}),
	}
	m.mu.Lock()
	m.active[recID] = cp
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordingsActive.Inc()
		m.metrics.RecordingsStarted.Inc()
		m.metrics.CapturesActive.Inc()
		m.metrics.CaptureStarts.Inc()
	}

	m.broadcast(fanout.Message{Type: fanout.TypeRecordingStarted, Data: fanout.RecordingEventPayload{
		RecordingID: recID, StreamID: streamID, StreamerID: stream.StreamerID, FilePath: rawPath,
	}})

	m.wg.Add(1)
	go m.monitor(recID, cp)

	return m.gw.GetRecording(ctx, recID)
}

// ForceStart is an operator-triggered start that bypasses the usual
// platform-event trigger (spec.md §4.7 public operations); it creates a new
// stream row for the streamer rather than accepting a stream id, and
// refuses if that streamer already has an active capture.
func (m *Manager) ForceStart(ctx context.Context, streamerID int64) (db.Recording, error) {
	m.mu.Lock()
	for _, c := range m.active {
		if c.streamerID == streamerID {
			m.mu.Unlock()
			return db.Recording{}, ErrAlreadyRecording
		}
	}
	m.mu.Unlock()

	recent, err := m.gw.ListRecordingsByStatus(ctx, db.RecordingStatusRecording)
	if err != nil {
		return db.Recording{}, modelerrors.Retryable("recording: listing active recordings failed", err)
	}
	for _, r := range recent {
		if r.StreamerID == streamerID {
			return db.Recording{}, ErrAlreadyRecording
		}
	}

	streamer, err := m.gw.GetStreamerByID(ctx, streamerID)
	if err != nil {
		return db.Recording{}, modelerrors.NonRetryable("recording: unknown streamer", err)
	}
	streamID, err := m.gw.CreateStream(ctx, db.Stream{
		StreamerID: streamerID, Title: "Forced recording", StartedAt: config.Clock.Now(),
	})
	if err != nil {
		return db.Recording{}, modelerrors.Retryable("recording: creating forced stream failed", err)
	}
	log.Log("", "recording: force_start issued", "streamer", streamer.Username, "stream_id", streamID)
	return m.StartRecording(ctx, streamID)
}

// StopRecording implements spec.md §4.7's stop path: cancel the monitor,
// terminate the capture child, and on a clean exit mark the recording
// stopped. When reason is "automatic" (the platform told us the stream
// ended) the post-processing DAG is enqueued asynchronously so the caller
// isn't blocked on it.
func (m *Manager) StopRecording(ctx context.Context, recordingID int64, reason string) error {
	cp, ok := m.takeActive(recordingID)
	if !ok {
		return modelerrors.NonRetryable(fmt.Sprintf("recording: %d is not an active capture", recordingID), nil)
	}
	close(cp.stopMonitor)
	m.sup.Terminate(cp.processID)
	m.finalize(ctx, recordingID, cp, reason)
	return nil
}

// takeActive atomically removes and returns the capture bookkeeping for a
// recording, used by both an explicit StopRecording call and the monitor's
// own detection of a capture that exited on its own.
func (m *Manager) takeActive(recordingID int64) (*capture, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.active[recordingID]
	if ok {
		delete(m.active, recordingID)
	}
	return cp, ok
}

// finalize clears the durable active-recording row and broadcasts the stop.
// Only reason == "automatic" (the platform told us the stream ended) moves
// the recording into "processing" and enqueues the post-processing DAG; any
// other reason (a manual/operator stop, or reason=shutdown from
// GracefulShutdown) marks the recording terminally "stopped" and leaves the
// raw file exactly as captured -- spec.md §4.7 and the original
// recording_lifecycle_manager.py's stop path never post-process a manual
// stop.
func (m *Manager) finalize(ctx context.Context, recordingID int64, cp *capture, reason string) {
	m.tracker.Remove(cp.processID)
	m.gw.DeleteActiveRecording(ctx, recordingID)

	if m.metrics != nil {
		m.metrics.RecordingsActive.Dec()
		m.metrics.CapturesActive.Dec()
		m.metrics.RecordingsStopped.WithLabelValues(reason).Inc()
	}
	m.broadcast(fanout.Message{Type: fanout.TypeRecordingStopped, Data: fanout.RecordingEventPayload{
		RecordingID: recordingID, StreamID: cp.streamID, StreamerID: cp.streamerID, Reason: reason,
	}})

	if reason != "automatic" {
		if err := m.gw.UpdateRecordingStatus(ctx, recordingID, db.RecordingStatusStopped); err != nil {
			log.LogError("", "recording: marking recording stopped failed", err, "recording_id", recordingID)
		}
		return
	}

	if err := m.gw.UpdateRecordingStatus(ctx, recordingID, db.RecordingStatusProcessing); err != nil {
		log.LogError("", "recording: marking recording processing failed", err, "recording_id", recordingID)
	}
	go m.completeAndEnqueue(context.Background(), recordingID, cp)
}

// completeAndEnqueue implements the completion path: verify the media file
// exists, record its size (the recording stays "processing"), broadcast
// recording completed, and hand it to the post-processing DAG.
func (m *Manager) completeAndEnqueue(ctx context.Context, recordingID int64, cp *capture) {
	info, err := os.Stat(cp.rawPath)
	if err != nil {
		log.LogError("", "recording: capture output missing at completion", err, "recording_id", recordingID, "path", cp.rawPath)
		m.gw.SetRecordingError(ctx, recordingID, "capture_output_missing")
		m.broadcast(fanout.Message{Type: fanout.TypeRecordingFailed, Data: fanout.RecordingEventPayload{
			RecordingID: recordingID, StreamID: cp.streamID, StreamerID: cp.streamerID, Reason: "capture_output_missing",
		}})
		return
	}

	if err := m.gw.SetRecordingCompletion(ctx, recordingID, db.RecordingStatusProcessing, 0, info.Size()); err != nil {
		log.LogError("", "recording: recording completion update failed", err, "recording_id", recordingID)
	}
	m.broadcast(fanout.Message{Type: fanout.TypeRecordingCompleted, Data: fanout.RecordingEventPayload{
		RecordingID: recordingID, StreamID: cp.streamID, StreamerID: cp.streamerID, FilePath: cp.rawPath, FileSize: info.Size(),
	}})

	rec, err := m.gw.GetRecording(ctx, recordingID)
	if err != nil {
		log.LogError("", "recording: reloading recording before enqueue failed", err, "recording_id", recordingID)
		return
	}
	if _, err := m.queue.EnqueueRecordingPostProcessing(rec, cp.streamerName); err != nil {
		log.LogError("", "recording: enqueueing post-processing DAG failed", err, "recording_id", recordingID)
	}
}

// GracefulShutdown implements spec.md §5's cooperative shutdown: refuse new
// starts, stop every active capture with reason=shutdown, and wait up to
// timeout for the process supervisor to finish terminating children.
func (m *Manager) GracefulShutdown(timeout time.Duration) {
	m.mu.Lock()
	m.shuttingDown = true
	ids := make([]int64, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	deadline := config.Clock.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := m.StopRecording(ctx, id, "shutdown"); err != nil {
				log.LogError("", "recording: graceful stop failed", err, "recording_id", id)
			}
		}(id)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
