// Package postprocess implements the Post-Processing Handlers (C9): the DAG
// of steps that turn a raw capture into a media-server-ready asset --
// concat, remux, validate, metadata sidecars, thumbnails, and cleanup of
// intermediates. Every step is idempotent: it re-reads
// RecordingProcessingState before doing any work so a crash-and-resume
// never redoes (or skips) a step. Grounded on the teacher's pipeline
// handler shape (one function per step, bounded exec.CommandContext calls)
// and its progress reporting conventions.
package postprocess

import (
	"context"
	"fmt"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/ffprobe"
	"github.com/Serph91P/StreamVault-sub001/log"
	"github.com/Serph91P/StreamVault-sub001/metrics"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
	"github.com/Serph91P/StreamVault-sub001/queue"
)

// StepFunc performs the actual work of a single DAG step for a recording.
type StepFunc func(ctx context.Context, rec db.Recording) error

// Handlers wires the DB gateway, metrics, and the registered StepFuncs
// together into the idempotency-gated runner the queue's worker pool calls.
type Handlers struct {
	gw      *db.Gateway
	metrics *metrics.CoreMetrics
	prober  ffprobe.Prober
	steps   map[string]StepFunc
}

func NewHandlers(gw *db.Gateway, m *metrics.CoreMetrics, prober ffprobe.Prober) *Handlers {
	h := &Handlers{gw: gw, metrics: m, prober: prober, steps: map[string]StepFunc{}}
	h.steps[StepConcat] = h.Concat
	h.steps[StepRemux] = h.Remux
	h.steps[StepValidate] = h.Validate
	h.steps[StepMetadata] = h.Metadata
	h.steps[StepThumbnail] = h.Thumbnail
	h.steps[StepCleanup] = h.Cleanup
	return h
}

const (
	StepConcat    = "concat"
	StepRemux     = "remux"
	StepValidate  = "validate"
	StepMetadata  = "metadata"
	StepThumbnail = "thumbnail"
	StepCleanup   = "cleanup"
)

// RunStep is the idempotency gate every queue task for a post-processing
// step passes through (spec.md §4.6): re-read the persisted step status, do
// nothing if it's already completed or skipped, otherwise mark running,
// execute, and persist the terminal status.
func (h *Handlers) RunStep(ctx context.Context, recordingID int64, step string) error {
	fn, ok := h.steps[step]
	if !ok {
		return modelerrors.NonRetryable(fmt.Sprintf("postprocess: unknown step %q", step), nil)
	}

	state, err := h.gw.GetProcessingState(ctx, recordingID, step)
	if err == nil && (state.Status == db.StepCompleted || state.Status == db.StepSkipped) {
		log.Log("", "postprocess: step already terminal, skipping", "recording_id", recordingID, "step", step)
		return nil
	}

	if err := h.gw.SetStepStatus(ctx, recordingID, step, db.StepRunning); err != nil {
		return modelerrors.Retryable("postprocess: marking step running failed", err)
	}

	rec, err := h.gw.GetRecording(ctx, recordingID)
	if err != nil {
		return modelerrors.Retryable("postprocess: loading recording failed", err)
	}

	timer := timerFor(h.metrics, step)
	runErr := fn(ctx, rec)
	timer()

	if runErr != nil {
		_ = h.gw.SetStepStatus(ctx, recordingID, step, db.StepFailed)
		if h.metrics != nil {
			h.metrics.TasksFailed.WithLabelValues(step).Inc()
		}
		return runErr
	}

	if err := h.gw.SetStepStatus(ctx, recordingID, step, db.StepCompleted); err != nil {
		return modelerrors.Retryable("postprocess: marking step completed failed", err)
	}
	if h.metrics != nil {
		h.metrics.TasksCompleted.WithLabelValues(step).Inc()
	}
	return nil
}

// PostProcessStepHandler adapts RunStep to queue.HandlerFunc for
// registration under the "postprocess_step" task type.
func (h *Handlers) PostProcessStepHandler() queue.HandlerFunc {
	return func(ctx context.Context, payload queue.Payload, progressFn func(int)) error {
		return h.RunStep(ctx, payload.RecordingID, payload.Step)
	}
}

func timerFor(m *metrics.CoreMetrics, step string) func() {
	if m == nil {
		return func() {}
	}
	t := m.PostProcessStepDuration.WithLabelValues(step)
	start := config.Clock.Now()
	return func() { t.Observe(config.Clock.Now().Sub(start).Seconds()) }
}
