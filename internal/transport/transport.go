// Package transport executes queries against upstream life-science
// databases with result caching, request pacing, and bounded retries.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/metrics"
	"github.com/openbioscience/finch/internal/normalize"
	"github.com/openbioscience/finch/internal/ratelimit"
	"github.com/openbioscience/finch/internal/registry"
)

var tracer = otel.Tracer("finch-transport")

// Several upstream providers ask automated clients to identify
// themselves with a contact URL.
const userAgent = "finch (+https://github.com/openbioscience/finch)"

// maxErrorBodyLen bounds how much of an upstream error body is carried
// in a RequestError.
const maxErrorBodyLen = 512

// Client executes queries against registered databases.
type Client struct {
	registry    *registry.Registry
	cache       domain.Cache
	limiter     *ratelimit.Limiter
	metrics     *metrics.Metrics
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	cacheTTL    time.Duration
	credentials map[domain.Database]string
}

// NewClient creates a transport client. The cache, limiter, and
// metrics may be nil; the client then runs uncached, unpaced, or
// uninstrumented respectively.
func NewClient(reg *registry.Registry, cache domain.Cache, limiter *ratelimit.Limiter, m *metrics.Metrics, cfg domain.TransportConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	return &Client{
		registry:    reg,
		cache:       cache,
		limiter:     limiter,
		metrics:     m,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		cacheTTL:    cfg.CacheTTL,
		credentials: cfg.Credentials,
	}
}

// Execute runs a single query: cache lookup, rate-limited upstream
// attempts with retries, normalization, and cache write-through.
//
// Error taxonomy:
//   - ConfigError: the query cannot be attempted (unknown database,
//     bad URL). No network I/O happens.
//   - RequestError: the upstream rejected the request (4xx). Never
//     retried.
//   - TransportError: the upstream was unreachable or kept failing
//     (network errors, 5xx) after all attempts.
func (c *Client) Execute(ctx context.Context, q *domain.Query) (*domain.Result, error) {
	if q == nil {
		return nil, domain.ConfigErrorf("query is required")
	}

	shape := q.Shape
	if shape == "" {
		shape = domain.ShapeStructured
	}

	baseURL, err := c.registry.BaseURL(q.Database)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "execute query",
		trace.WithAttributes(
			attribute.String("db.system", string(q.Database)),
			attribute.String("query.endpoint", q.Endpoint),
			attribute.String("query.shape", string(shape)),
		),
	)
	defer span.End()

	fingerprint := Fingerprint(q)

	if c.cache != nil {
		cached, cerr := c.cache.GetResult(ctx, string(q.Database), fingerprint)
		if cerr != nil {
			slog.Warn("result cache read failed",
				"database", q.Database,
				"error", cerr)
		}
		// A cached entry with a different shape does not satisfy
		// this query; the write-through below replaces it.
		if cached != nil && cached.Shape == shape {
			c.metrics.RecordCacheHit(string(q.Database))
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		c.metrics.RecordCacheMiss(string(q.Database))
	}

	reqURL, body, err := c.buildRequest(baseURL, q)
	if err != nil {
		return nil, err
	}

	var raw []byte
	attempts, err := withRetry(ctx, c.maxAttempts, c.baseDelay, func(attempt int) error {
		if attempt > 1 {
			c.metrics.RecordRetry(string(q.Database))
			slog.Warn("retrying upstream request",
				"database", q.Database,
				"endpoint", q.Endpoint,
				"attempt", attempt)
		}

		// Every attempt consumes window budget, so retries cannot
		// burst past the per-database pace.
		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx, q.Database); werr != nil {
				return nonRetryable(werr)
			}
		}

		data, derr := c.do(ctx, q, shape, reqURL, body)
		if derr != nil {
			return derr
		}
		raw = data
		return nil
	})
	if err != nil {
		span.RecordError(err)

		var reqErr *domain.RequestError
		if errors.As(err, &reqErr) {
			c.metrics.RecordUpstreamRequest(string(q.Database), "request_error")
			return nil, err
		}

		c.metrics.RecordUpstreamRequest(string(q.Database), "transport_error")
		return nil, &domain.TransportError{Database: q.Database, Attempts: attempts, Err: err}
	}

	result := normalize.Normalize(raw, shape, q.Database)
	if result.Shape == domain.ShapeText && shape != domain.ShapeText {
		c.metrics.RecordDegradation(string(q.Database))
	}

	if c.cache != nil {
		if cerr := c.cache.SetResult(ctx, string(q.Database), fingerprint, result, c.cacheTTL); cerr != nil {
			slog.Warn("result cache write failed",
				"database", q.Database,
				"error", cerr)
		}
	}

	c.metrics.RecordUpstreamRequest(string(q.Database), "success")
	return result, nil
}

// buildRequest assembles the full request URL and body. Credentials
// configured for the database are added as a query parameter unless
// the caller already set one.
func (c *Client) buildRequest(baseURL string, q *domain.Query) (string, []byte, error) {
	reqURL := strings.TrimRight(baseURL, "/")
	if q.Endpoint != "" {
		reqURL += "/" + strings.TrimLeft(q.Endpoint, "/")
	}

	values := url.Values{}
	for k, v := range q.Params {
		values.Set(k, v)
	}
	if cred, ok := c.credentials[q.Database]; ok && cred != "" {
		param := c.registry.CredentialParam(q.Database)
		if _, exists := q.Params[param]; !exists {
			values.Set(param, cred)
		}
	}
	if len(values) > 0 {
		reqURL += "?" + values.Encode()
	}

	if _, err := url.Parse(reqURL); err != nil {
		return "", nil, domain.ConfigErrorf("invalid request URL %q: %v", reqURL, err)
	}

	var body []byte
	if q.HTTPMethod() != http.MethodGet && len(q.Body) > 0 {
		raw, err := json.Marshal(q.Body)
		if err != nil {
			return "", nil, domain.ConfigErrorf("unencodable request body: %v", err)
		}
		body = raw
	}

	return reqURL, body, nil
}

// do performs one HTTP attempt. 5xx responses and network failures
// return retryable errors; 4xx responses return a non-retryable
// RequestError.
func (c *Client) do(ctx context.Context, q *domain.Query, shape domain.Shape, reqURL string, body []byte) ([]byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, q.HTTPMethod(), reqURL, reader)
	if err != nil {
		return nil, nonRetryable(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptFor(shape))
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, nonRetryable(&domain.RequestError{
			Database: q.Database,
			Status:   resp.StatusCode,
			Body:     truncate(string(data), maxErrorBodyLen),
		})
	}

	return data, nil
}

func acceptFor(shape domain.Shape) string {
	switch shape {
	case domain.ShapeStructured, domain.ShapeGraph:
		return "application/json"
	case domain.ShapeTabular:
		return "text/tab-separated-values, text/plain;q=0.9, */*;q=0.5"
	default:
		return "*/*"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
