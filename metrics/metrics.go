// Package metrics exposes Prometheus gauges/counters/histograms for the
// core components, following the teacher's promauto-based pattern (one
// struct of named collectors, built once at startup).
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/log"
)

type CoreMetrics struct {
	Version prometheus.Counter

	// C2 Process Supervisor
	CapturesActive    prometheus.Gauge
	CaptureStarts     prometheus.Counter
	CaptureFailures   *prometheus.CounterVec
	CaptureDurationMS prometheus.Histogram

	// C3 Database Gateway
	DBRetryCount  prometheus.Counter
	DBOpDurations *prometheus.HistogramVec

	// Outbound HTTP (platform client retry instrumentation)
	HTTPRetryCount prometheus.Counter

	// C5/C6/C7 Queue
	QueueDepth          *prometheus.GaugeVec
	TasksCompleted      *prometheus.CounterVec
	TasksFailed         *prometheus.CounterVec
	TaskDurationSeconds *prometheus.HistogramVec
	ActiveStreamerCount prometheus.Gauge

	// C8 Recording Lifecycle Manager
	RecordingsActive  prometheus.Gauge
	RecordingsStarted prometheus.Counter
	RecordingsStopped *prometheus.CounterVec

	// C9 Post-Processing
	PostProcessStepDuration *prometheus.HistogramVec

	// C10 Recovery Subsystem
	OrphansRecovered prometheus.Counter
	TasksReaped      *prometheus.CounterVec

	// C11 WebSocket Fan-Out
	WSConnectedClients prometheus.Gauge
	WSMessagesSent     *prometheus.CounterVec
	WSSendFailures      prometheus.Counter
}

var queueLabels = []string{"streamer"}

func NewMetrics() *CoreMetrics {
	m := &CoreMetrics{
		Version: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_version",
			Help: "Incremented once on app startup; labels carry the running version via a const label.",
			ConstLabels: prometheus.Labels{
				"version": config.Version,
			},
		}),

		CapturesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_captures_active",
			Help: "Number of capture subprocesses currently running",
		}),
		CaptureStarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_capture_starts_total",
			Help: "Total number of capture subprocesses started",
		}),
		CaptureFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_capture_failures_total",
			Help: "Total number of capture subprocesses that exited non-zero",
		}, []string{"streamer"}),
		CaptureDurationMS: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamvault_capture_duration_ms",
			Help:    "Wall-clock duration of completed captures in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 15),
		}),

		DBRetryCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_db_retries_total",
			Help: "Total number of transient DB operation retries",
		}),
		DBOpDurations: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamvault_db_operation_duration_seconds",
			Help:    "Duration of database gateway operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),

		HTTPRetryCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_http_retries_total",
			Help: "Total number of outbound HTTP request retries",
		}),

		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamvault_queue_depth",
			Help: "Pending task count per streamer queue",
		}, queueLabels),
		TasksCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_tasks_completed_total",
			Help: "Total tasks completed by type",
		}, []string{"task_type"}),
		TasksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_tasks_failed_total",
			Help: "Total tasks that reached the failed state by type",
		}, []string{"task_type"}),
		TaskDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamvault_task_duration_seconds",
			Help:    "Task execution duration by type",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),
		ActiveStreamerCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_active_streamer_queues",
			Help: "Number of streamer-isolated queues currently instantiated",
		}),

		RecordingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_recordings_active",
			Help: "Number of recordings currently in progress",
		}),
		RecordingsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_recordings_started_total",
			Help: "Total recordings started",
		}),
		RecordingsStopped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_recordings_stopped_total",
			Help: "Total recordings stopped by reason",
		}, []string{"reason"}),

		PostProcessStepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamvault_postprocess_step_duration_seconds",
			Help:    "Duration of each post-processing DAG step",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"step"}),

		OrphansRecovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_orphans_recovered_total",
			Help: "Total orphaned recordings re-queued by the recovery subsystem",
		}),
		TasksReaped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_tasks_reaped_total",
			Help: "Total tasks forcibly transitioned to a terminal state by the reaper",
		}, []string{"outcome"}),

		WSConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_ws_connected_clients",
			Help: "Number of currently connected WebSocket peers",
		}),
		WSMessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_ws_messages_sent_total",
			Help: "Total WebSocket messages sent by type",
		}, []string{"message_type"}),
		WSSendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_ws_send_failures_total",
			Help: "Total per-peer send failures (peer disconnected as a result)",
		}),
	}
	m.Version.Inc()
	return m
}

// ListenAndServe exposes the /metrics endpoint, mirroring the teacher's
// api.ListenAndServe shutdown shape: serve in a goroutine, cancel the local
// context on a listen error, and Shutdown(ctx) once the passed-in ctx is
// done so the errgroup it's running under can actually return.
func ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := http.Server{Addr: addr, Handler: mux}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoRequestID("starting Prometheus metrics", "version", config.Version, "host", addr)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
