package fetcher

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/resilience"
)

const jitterFraction = 0.2

// RetryingFetcher retries a Fetcher with capped exponential backoff:
// attempt i (zero-based) that fails with attempts remaining is followed by a
// sleep of min(MaxDelay, BaseDelay*2^i) * (1 + U[0, 0.2)).
type RetryingFetcher struct {
	next    Fetcher
	policy  resilience.RetryConfig
	metrics *metrics.Metrics
}

// NewRetryingFetcher wraps next. Client errors other than 408 and 429 end
// the loop at once unless cfg.RetryClientErrors is set. m may be nil.
func NewRetryingFetcher(next Fetcher, cfg config.RetryConfig, m *metrics.Metrics) *RetryingFetcher {
	policy := resilience.RetryConfig{
		MaxAttempts:    cfg.Attempts,
		InitialDelay:   cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		Multiplier:     2,
		JitterFraction: jitterFraction,
	}
	if !cfg.RetryClientErrors {
		policy.ShouldRetry = apperrors.Retryable
	}
	return &RetryingFetcher{next: next, policy: policy, metrics: m}
}

// Fetch returns the first successful body. When every attempt fails the
// error of the final attempt is returned, wrapped with the attempt count.
func (r *RetryingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	policy := r.policy
	if r.metrics != nil {
		endpoint := endpointFrom(ctx)
		policy.OnRetry = func(int, error, time.Duration) {
			r.metrics.FetchRetriesTotal.WithLabelValues(endpoint).Inc()
		}
	}
	return resilience.Do(ctx, "GET "+url, policy, func(ctx context.Context) (string, error) {
		return r.next.Fetch(ctx, url)
	})
}
