// Package fetcher retrieves catalog documents over HTTP. HTTPFetcher performs
// a single GET under a hard deadline; RetryingFetcher wraps any Fetcher with
// exponential backoff.
package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/resilience"
	"golang.org/x/time/rate"
)

// Fetcher returns the body of a successful GET as text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type endpointKey struct{}

// WithEndpoint labels fetches made with ctx for metrics ("makes",
// "vehicle_types").
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey{}, endpoint)
}

func endpointFrom(ctx context.Context) string {
	if e, ok := ctx.Value(endpointKey{}).(string); ok {
		return e
	}
	return "other"
}

// HTTPFetcher issues plain GET requests. It never retries.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	userAgent string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*HTTPFetcher)

// WithClient replaces the default http.Client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithMetrics records request counts and latency in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *HTTPFetcher) { f.metrics = m }
}

// NewHTTPFetcher builds a fetcher from the ingestion settings. A zero
// RequestsPerSecond leaves outbound traffic unthrottled.
func NewHTTPFetcher(cfg config.IngestionConfig, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: cfg.MaxConcurrentFetches,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		timeout:   cfg.FetchTimeout,
		userAgent: cfg.UserAgent,
		logger:    slog.Default().With("component", "http-fetcher"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one GET. Non-2xx responses become a FetchError wrapping
// ErrHTTPStatus; network failures and deadline expiry wrap ErrTransport.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	endpoint := endpointFrom(ctx)
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", apperrors.NewTransportError(url, err)
		}
	}

	if f.metrics != nil {
		f.metrics.FetchesInFlight.Inc()
		defer f.metrics.FetchesInFlight.Dec()
	}
	start := time.Now()
	body, err := resilience.Timeout(ctx, f.timeout, "GET "+url, func(ctx context.Context) (string, error) {
		return f.get(ctx, url)
	})
	elapsed := time.Since(start)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		var fe *apperrors.FetchError
		if !errors.As(err, &fe) {
			err = apperrors.NewTransportError(url, err)
		}
	}

	if f.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = apperrors.Kind(err)
		}
		f.metrics.FetchRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
		f.metrics.FetchDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	}
	if err != nil {
		return "", err
	}
	f.logger.Debug("fetched", "url", url, "bytes", len(body), "duration_ms", elapsed.Milliseconds())
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrTransport, "building request for %s: %v", url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", apperrors.NewTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", apperrors.NewStatusError(url, resp.StatusCode, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewTransportError(url, err)
	}
	return string(data), nil
}
