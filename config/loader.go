package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix used for every environment variable override.
const EnvPrefix = "STREAMVAULT_"

// Load reads overrides from an optional YAML file and from STREAMVAULT_*
// environment variables (env wins over file, following the precedence the
// koanf-based loaders in the pack use), and applies them over the package's
// compiled-in defaults. yamlPath may be empty to skip the file source.
func Load(yamlPath string) error {
	k := koanf.New(".")

	if yamlPath != "" {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			return err
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return normalizeEnvKey(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil); err != nil {
		return err
	}

	applyString(k, "recordings_root", &RecordingsRoot)
	applyString(k, "database_dsn", &DatabaseDSN)
	applyString(k, "metrics_addr", &MetricsAddr)
	applyString(k, "capture_log_dir", &CaptureLogDir)
	applyString(k, "playback_url_template", &PlaybackURLTemplate)

	applyDuration(k, "capture_graceful_timeout", &CaptureGracefulTimeout)
	applyDuration(k, "process_attach_timeout", &ProcessAttachTimeout)

	applyDuration(k, "db_retry_base_delay", &DBRetryBaseDelay)
	applyDuration(k, "db_retry_max_delay", &DBRetryMaxDelay)
	applyDuration(k, "db_conn_max_lifetime", &DBConnMaxLifetime)

	applyDuration(k, "completed_task_retention", &CompletedTaskRetention)

	applyDuration(k, "worker_poll_interval", &WorkerPollInterval)
	applyDuration(k, "worker_backoff_cap", &WorkerBackoffCap)
	applyDuration(k, "dependency_worker_tick", &DependencyWorkerTick)
	applyDuration(k, "queue_stats_broadcast_interval", &QueueStatsBroadcastInterval)

	applyInt(k, "max_concurrent_recordings", &MaxConcurrentRecordings)
	applyDuration(k, "recording_monitor_interval", &RecordingMonitorInterval)

	applyDuration(k, "concat_timeout", &ConcatTimeout)
	applyDuration(k, "remux_timeout", &RemuxTimeout)

	applyDuration(k, "reaper_interval", &ReaperInterval)
	applyDuration(k, "stuck_capture_completed_threshold", &StuckCaptureCompletedThreshold)
	applyDuration(k, "stuck_task_age_threshold", &StuckTaskAgeThreshold)
	applyDuration(k, "stale_heartbeat_threshold", &StaleHeartbeatThreshold)
	applyDuration(k, "orphan_check_task_max_age", &OrphanCheckTaskMaxAge)

	applyDuration(k, "snapshot_broadcast_interval", &SnapshotBroadcastInterval)

	applyDuration(k, "session_max_age", &SessionMaxAge)
	applyDuration(k, "session_cleanup_interval", &SessionCleanupInterval)
	applyDuration(k, "share_token_cleanup_interval", &ShareTokenCleanupInterval)

	applyDuration(k, "heartbeat_interval", &HeartbeatInterval)
	applyDuration(k, "heartbeat_stale_after", &HeartbeatStaleAfter)

	return nil
}

// normalizeEnvKey turns MAX_CONCURRENT_RECORDINGS (the variable name after
// Load's TransformFunc has stripped EnvPrefix) into max_concurrent_recordings.
func normalizeEnvKey(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out[i] = c
	}
	return string(out)
}

func applyString(k *koanf.Koanf, key string, dst *string) {
	if k.Exists(key) {
		*dst = k.String(key)
	}
}

func applyInt(k *koanf.Koanf, key string, dst *int) {
	if k.Exists(key) {
		*dst = k.Int(key)
	}
}

func applyDuration(k *koanf.Koanf, key string, dst *time.Duration) {
	if !k.Exists(key) {
		return
	}
	if d, err := time.ParseDuration(k.String(key)); err == nil && d != 0 {
		*dst = d
		return
	}
	// A plain integer is read as seconds.
	if secs := k.Int64(key); secs != 0 {
		*dst = time.Duration(secs) * time.Second
	}
}
