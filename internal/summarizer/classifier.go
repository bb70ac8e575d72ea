package summarizer

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"meetscribe/config"
	"meetscribe/internal/provider"
)

// defaultTransientMarkers mark a provider error message as a capacity
// problem when configuration supplies none.
var defaultTransientMarkers = []string{"quota", "insufficient", "rate limit"}

// Classifier decides whether a provider failure is a transient capacity
// condition worth falling back on, or a hard failure to propagate.
type Classifier struct {
	markers            []string
	timeoutIsTransient bool
}

// NewClassifier builds a classifier from configuration.
func NewClassifier(cfg config.SummarizerConfig) Classifier {
	markers := cfg.TransientMarkers
	if len(markers) == 0 {
		markers = defaultTransientMarkers
	}
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return Classifier{markers: lowered, timeoutIsTransient: cfg.TimeoutIsTransient}
}

// IsTransient reports whether err represents exhausted capacity. HTTP 429
// and quota/rate-limit wording qualify. Timeouts follow the configured
// policy; everything else (bad requests, auth failures, malformed
// responses) is a hard failure.
func (c Classifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return c.timeoutIsTransient
	}
	perr, ok := provider.AsError(err)
	if !ok {
		return false
	}
	if perr.Timeout {
		return c.timeoutIsTransient
	}
	if perr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(perr.Message)
	for _, marker := range c.markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
