// internal/llmclient/retry.go
package llmclient

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// statusOverloaded is returned by Anthropic when the API is temporarily saturated.
const statusOverloaded = 529

const defaultMaxTokens = 4096

// transientStatus reports whether a provider status code is worth another attempt.
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		statusOverloaded:
		return true
	default:
		return false
	}
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second
	return b
}

// callContext bounds a single provider call. A zero timeout leaves ctx unchanged.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// temperature picks the request temperature, falling back to the model default.
func temperature(req, model float64) float64 {
	if req > 0 {
		return req
	}
	return model
}

func ptr[T any](v T) *T {
	return &v
}
