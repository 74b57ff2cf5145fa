package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kamiyo-ai/risk-auditor/internal/metrics"
)

// ErrAllSourcesExhausted indicates that every configured provider failed.
// The returned error wraps the last underlying failure for diagnostics.
var ErrAllSourcesExhausted = errors.New("all upstream sources exhausted")

type exhaustedError struct {
	last error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("%v: last error: %v", ErrAllSourcesExhausted, e.last)
}

func (e *exhaustedError) Unwrap() error { return e.last }

func (e *exhaustedError) Is(target error) bool { return target == ErrAllSourcesExhausted }

// Query is a parameterized read against the upstream providers.
type Query struct {
	// Resource is the provider-side path segment (e.g. "approval-audit").
	Resource string
	// Params are the query parameters. Normalization sorts them, so
	// equivalent queries with reordered parameters share a cache key.
	Params map[string]string
}

// Normalize returns the canonical serialization of the query.
func (q Query) Normalize() []byte {
	values := url.Values{}
	for key, value := range q.Params {
		values.Set(key, value)
	}
	// url.Values.Encode sorts by key.
	return []byte(q.Resource + "?" + values.Encode())
}

// CacheKey returns the response-cache key for the query.
func (q Query) CacheKey() string {
	return CacheKey(q.Normalize())
}

// Fetcher tries sources in registry order behind the response cache,
// applying the circuit-breaker policy to each outcome. It exclusively owns
// the registry's health state and the response cache.
type Fetcher struct {
	registry *Registry
	cache    Store
	cacheTTL time.Duration

	attemptTimeout time.Duration
	client         *http.Client
	log            *zap.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = client }
}

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// NewFetcher creates a failover fetcher. attemptTimeout bounds each provider
// call; cacheTTL bounds how long successful results are reused.
func NewFetcher(registry *Registry, cache Store, cacheTTL, attemptTimeout time.Duration, log *zap.Logger, opts ...FetcherOption) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Fetcher{
		registry:       registry,
		cache:          cache,
		cacheTTL:       cacheTTL,
		attemptTimeout: attemptTimeout,
		client:         &http.Client{},
		log:            log,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch serves the query from the response cache when possible, otherwise
// tries sources strictly sequentially in health/priority order. A success is
// cached and returned immediately; if every source fails the last underlying
// error is surfaced wrapped in ErrAllSourcesExhausted, never swallowed.
func (f *Fetcher) Fetch(ctx context.Context, q Query) ([]byte, error) {
	key := q.CacheKey()

	if data, ok, err := f.cache.Get(ctx, key); err != nil {
		// A cache outage must not fail the request; fall through to fetch.
		f.log.Warn("response cache lookup failed", zap.Error(err))
	} else if ok {
		f.metrics.IncResponseCacheHit()
		return data, nil
	}
	f.metrics.IncResponseCacheMiss()

	var lastErr error
	for _, src := range f.registry.Ordered(f.now()) {
		data, err := f.attempt(ctx, src, q)
		if err == nil {
			f.registry.RecordSuccess(src)
			f.metrics.IncUpstreamAttempt(src.Name, "ok")
			if cacheErr := f.cache.Set(ctx, key, data, f.cacheTTL); cacheErr != nil {
				f.log.Warn("response cache write failed", zap.Error(cacheErr))
			}
			return data, nil
		}

		// A cancelled caller aborts the whole fetch without committing
		// health-counter changes for the interrupted attempt.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		f.registry.RecordFailure(src, f.now())
		f.metrics.IncUpstreamAttempt(src.Name, "error")
		f.log.Warn("upstream fetch failed",
			zap.String("source", src.Name),
			zap.Int("consecutiveFailures", src.ConsecutiveFailures()),
			zap.Error(err))
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no sources configured")
	}
	return nil, &exhaustedError{last: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, src *Source, q Query) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, f.requestURL(src, q), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", src.Name, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s returned status %d", src.Name, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source %s: read body: %w", src.Name, err)
	}
	return data, nil
}

func (f *Fetcher) requestURL(src *Source, q Query) string {
	values := url.Values{}
	for key, value := range q.Params {
		values.Set(key, value)
	}
	endpoint := strings.TrimSuffix(src.Endpoint, "/")
	u := endpoint + "/" + strings.TrimPrefix(q.Resource, "/")
	if encoded := values.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}
