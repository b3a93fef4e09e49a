// Package platform is a contract-only stub for the third-party streaming
// platform client (spec.md §1: "third-party API clients... beyond the
// fields the core consumes" are out of scope). It exposes exactly the shape
// the Recording Lifecycle Manager (C8) needs to start a capture and to flag
// an overdue OAuth refresh, grounded on the teacher's retryablehttp-based
// outbound client for the transport shape, with every real endpoint left
// unimplemented.
package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/Serph91P/StreamVault-sub001/metrics"
)

// Client is the contract C8 depends on. A real implementation would resolve
// a streamer's current HLS playlist URL via the platform's stream API; this
// core only needs the interface so StartRecording can be exercised without a
// live platform dependency in tests.
type Client interface {
	PlaybackURL(ctx context.Context, streamerUsername string) (string, error)
}

// HTTPClient is the thin outbound transport, built on the same
// retryablehttp client the teacher uses for its external calls, wired to
// streamvault_http_retries_total.
type HTTPClient struct {
	http *retryablehttp.Client
	base string
}

func NewHTTPClient(base string, m *metrics.CoreMetrics) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 5
	rc.Logger = nil
	if m != nil {
		rc.RequestLogHook = func(_ retryablehttp.Logger, _ *http.Request, attempt int) {
			if attempt > 0 {
				m.HTTPRetryCount.Inc()
			}
		}
	}
	return &HTTPClient{http: rc, base: base}
}

// PlaybackURL is left unimplemented: resolving it requires the platform
// REST client and EventSub subscriptions spec.md §1 places out of scope.
// Callers in tests and in the default wiring use a StaticClient instead.
func (c *HTTPClient) PlaybackURL(ctx context.Context, streamerUsername string) (string, error) {
	return "", fmt.Errorf("platform: live PlaybackURL resolution is out of scope for this core; configure platform.StaticClient or a real client")
}

// StaticClient is used by tests and by operators who resolve playback URLs
// out-of-band (e.g. a sidecar that already knows the HLS URL).
type StaticClient struct {
	URLTemplate string // e.g. "https://example.invalid/%s.m3u8"
}

func (c StaticClient) PlaybackURL(_ context.Context, streamerUsername string) (string, error) {
	if c.URLTemplate == "" {
		return "", fmt.Errorf("platform: no URL template configured for %s", streamerUsername)
	}
	return fmt.Sprintf(c.URLTemplate, streamerUsername), nil
}

// TokenState is the supplemented feature from original_source/'s Twitch
// token refresh bookkeeping (see SPEC_FULL.md §4): the core doesn't perform
// the refresh itself, but it needs to know whether one is due so an
// out-of-scope scheduler can act on it.
type TokenState struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IsRefreshDue reports whether the access token needs refreshing, with a
// 5-minute safety margin before actual expiry.
func (t TokenState) IsRefreshDue(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(5 * time.Minute).After(t.ExpiresAt)
}
