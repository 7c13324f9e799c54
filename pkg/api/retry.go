package api

import (
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig defines retry behavior for idempotent directives. The agent
// itself never retries; this is controller-side policy.
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableStatus []int
}

// DefaultRetryConfig returns sensible retry defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		RetryableStatus: []int{429, 502, 503, 504},
	}
}

func (rc RetryConfig) shouldRetry(statusCode int) bool {
	for _, code := range rc.RetryableStatus {
		if statusCode == code {
			return true
		}
	}
	return false
}

// delay calculates exponential backoff with ±25% jitter, capped at MaxDelay.
func (rc RetryConfig) delay(attempt int) time.Duration {
	d := float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt))
	d += d * 0.25 * (2*rand.Float64() - 1)
	if d > float64(rc.MaxDelay) {
		d = float64(rc.MaxDelay)
	}
	return time.Duration(d)
}

// doWithRetry sends a bodyless request, retrying on transport errors and
// retryable statuses until the context ends or attempts run out.
func doWithRetry(hc *http.Client, rc RetryConfig, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		resp, err := hc.Do(req.Clone(req.Context()))
		switch {
		case err != nil:
			lastErr = err
		case rc.shouldRetry(resp.StatusCode) && attempt < rc.MaxRetries:
			resp.Body.Close()
			lastErr = nil
		default:
			return resp, nil
		}
		if attempt == rc.MaxRetries {
			break
		}
		d := rc.delay(attempt)
		log.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_retries", rc.MaxRetries).
			Dur("delay", d).
			Str("url", req.URL.String()).
			Msg("agent request failed, retrying")
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(d):
		}
	}
	return nil, lastErr
}
