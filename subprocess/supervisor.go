// Package subprocess is the Process Supervisor (C2): it owns every capture
// child process (remux runs are started by postprocess, not here), from
// spawn through two-step termination, tees
// output into rotating per-streamer logs, and derives a progress signal
// from parsed output lines, degrading to heartbeat-only when lines don't
// carry a parseable duration marker. Grounded on the teacher's
// subprocess.LogOutputs pipe-teeing pattern and on the supervised-process
// shape of tomtom215-lyrebirdaudio-go's stream manager (two-step signal
// escalation, rotating logs, exponential backoff on restart).
package subprocess

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/ids"
	"github.com/Serph91P/StreamVault-sub001/log"
)

type Status string

const (
	StatusRunning  Status = "running"
	StatusExited   Status = "exited"
	StatusFailed   Status = "failed"
	StatusTerminating Status = "terminating"
)

// Progress is what Supervisor.ProgressOf reports back to the caller (the
// recording lifecycle manager, which feeds it into the C4 tracker).
type Progress struct {
	Status          Status
	DurationSeconds float64
	// HeartbeatOnly is set when no output line has yielded a parseable
	// duration yet; the caller should still treat the capture as alive.
	HeartbeatOnly bool
	LastHeartbeat time.Time
}

type handle struct {
	mu            sync.Mutex
	processID     string
	cmd           *exec.Cmd
	logWriter     *RotatingWriter
	startedAt     time.Time
	status        Status
	lastHeartbeat time.Time
	durationSecs  float64
	haveDuration  bool
	exitErr       error
	done          chan struct{}
}

// Supervisor manages the set of live capture child processes.
type Supervisor struct {
	logDir string

	mu      sync.Mutex
	handles map[string]*handle
}

func New(logDir string) *Supervisor {
	return &Supervisor{logDir: logDir, handles: map[string]*handle{}}
}

// StartCapture spawns an ffmpeg capture of streamURL into outputPath at the
// requested quality/codec selection, optionally routed through a capture
// proxy, and returns a process ID the caller uses for every subsequent
// Terminate/IsActive/Progress call.
func (s *Supervisor) StartCapture(ctx context.Context, streamerName, streamURL, outputPath, quality string, codecList []string, proxyURL string) (string, error) {
	args := buildFFmpegArgs(streamURL, outputPath, quality, codecList)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if proxyURL != "" {
		cmd.Env = append(cmd.Env, "HTTP_PROXY="+proxyURL, "HTTPS_PROXY="+proxyURL)
	}

	processID := ids.NewTaskID()
	logPath := filepath.Join(s.logDir, ids.SanitizeComponent(streamerName), processID+".log")
	writer, err := NewRotatingWriter(logPath, config.MaxLogFileSizeBytes, config.MaxLogFilesPerStreamer)
	if err != nil {
		return "", fmt.Errorf("subprocess: opening capture log: %w", err)
	}

	h := &handle{
		processID: processID,
		cmd:       cmd,
		logWriter: writer,
		startedAt: config.Clock.Now(),
		status:    StatusRunning,
		done:      make(chan struct{}),
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		writer.Close()
		return "", fmt.Errorf("subprocess: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		writer.Close()
		return "", fmt.Errorf("subprocess: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		writer.Close()
		return "", fmt.Errorf("subprocess: start: %w", err)
	}

	s.mu.Lock()
	s.handles[processID] = h
	s.mu.Unlock()

	go s.teeAndParse(h, stdoutPipe)
	go s.teeAndParse(h, stderrPipe)
	go s.wait(h)

	log.Log(processID, "capture started", "streamer", streamerName, "output", outputPath)
	return processID, nil
}

func (s *Supervisor) teeAndParse(h *handle, r interface{ Read([]byte) (int, error) }) {
	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			h.logWriter.Write(buf[:n])
			lines, rest := splitLines(chunk)
			carry = rest
			for _, line := range lines {
				s.observeLine(h, line)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) observeLine(h *handle, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastHeartbeat = config.Clock.Now()
	if secs, ok := parseFFmpegTime(line); ok {
		h.durationSecs = secs
		h.haveDuration = true
	}
}

func (s *Supervisor) wait(h *handle) {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	if err != nil {
		h.status = StatusFailed
	} else {
		h.status = StatusExited
	}
	h.mu.Unlock()
	h.logWriter.Close()
	close(h.done)
}

var ffmpegTimeRE = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)

// parseFFmpegTime extracts the wall-clock position ffmpeg reports in its
// periodic stderr progress lines ("... time=00:12:34.56 ..."). Lines that
// don't match (container startup, warnings) are ignored, not treated as
// errors -- this is the graceful degradation spec.md §4.1 calls for.
func parseFFmpegTime(line string) (float64, bool) {
	m := ffmpegTimeRE.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mnt, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	cs, _ := strconv.Atoi(m[4])
	total := float64(h*3600+mnt*60+sec) + float64(cs)/100
	return total, true
}

func splitLines(buf []byte) (lines []string, rest []byte) {
	start := 0
	for i, b := range buf {
		if b == '\n' {
			lines = append(lines, string(buf[start:i]))
			start = i + 1
		}
	}
	return lines, buf[start:]
}

func buildFFmpegArgs(streamURL, outputPath, quality string, codecList []string) []string {
	args := []string{"-y", "-i", streamURL}
	if len(codecList) > 0 {
		args = append(args, "-c:v", codecList[0])
	} else {
		args = append(args, "-c", "copy")
	}
	if quality != "" {
		args = append(args, "-video_size", quality)
	}
	return append(args, outputPath)
}

// Terminate stops a capture with the two-step escalation spec.md §4.1
// requires: an interrupt signal, a bounded grace period, then a forced
// kill. It returns true once the process has actually exited.
func (s *Supervisor) Terminate(processID string) bool {
	s.mu.Lock()
	h, ok := s.handles[processID]
	s.mu.Unlock()
	if !ok {
		return true
	}

	h.mu.Lock()
	h.status = StatusTerminating
	h.mu.Unlock()

	_ = h.cmd.Process.Signal(syscall.SIGINT)

	select {
	case <-h.done:
		return true
	case <-time.After(config.CaptureGracefulTimeout):
	}

	_ = h.cmd.Process.Kill()
	select {
	case <-h.done:
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}

func (s *Supervisor) IsActive(processID string) bool {
	s.mu.Lock()
	h, ok := s.handles[processID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status == StatusRunning || h.status == StatusTerminating
}

func (s *Supervisor) ProgressOf(processID string) (Progress, bool) {
	s.mu.Lock()
	h, ok := s.handles[processID]
	s.mu.Unlock()
	if !ok {
		return Progress{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return Progress{
		Status:          h.status,
		DurationSeconds: h.durationSecs,
		HeartbeatOnly:   !h.haveDuration,
		LastHeartbeat:   h.lastHeartbeat,
	}, true
}

// GracefulShutdown terminates every tracked process concurrently, bounded
// by timeout, used when the core itself is shutting down.
func (s *Supervisor) GracefulShutdown(timeout time.Duration) {
	s.mu.Lock()
	processIDs := make([]string, 0, len(s.handles))
	for id := range s.handles {
		processIDs = append(processIDs, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, id := range processIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.Terminate(id)
		}(id)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// Remove drops a finished handle from the tracked set; callers must check
// IsActive is false first.
func (s *Supervisor) Remove(processID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, processID)
}
