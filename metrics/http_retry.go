package metrics

import (
	"context"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// HttpRetryHook is installed as a retryablehttp.Client's CheckRetry so every
// outbound HTTP call made by the core's thin platform client feeds the
// shared retry-count metric.
func HttpRetryHook(m *CoreMetrics) retryablehttp.CheckRetry {
	return func(ctx context.Context, res *http.Response, err error) (bool, error) {
		if m != nil {
			m.HTTPRetryCount.Inc()
		}
		return retryablehttp.DefaultRetryPolicy(ctx, res, err)
	}
}
