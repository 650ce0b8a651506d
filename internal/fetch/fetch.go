// Package fetch downloads metadata documents from their published URLs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/metsync/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	ErrTooLarge         = errors.New("metadata document exceeds maximum size")
)

// Config holds fetcher configuration.
type Config struct {
	// CacheDir enables the on-disk HTTP cache. Empty uses an in-memory cache.
	CacheDir string

	// Timeout bounds a single HTTP request.
	// Default: 2 minutes
	Timeout time.Duration

	// MaxTries is the number of attempts for transient failures.
	// Default: 4
	MaxTries uint

	// InitialInterval is the first retry delay, doubled on each attempt.
	// Default: 1 second
	InitialInterval time.Duration

	// MaxBytes caps the size of a downloaded document.
	// Default: 512MiB
	MaxBytes int64

	UserAgent string
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxTries == 0 {
		c.MaxTries = 4
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 512 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "metsync"
	}
}

// Fetcher retrieves documents over HTTP, retrying transient failures with
// exponential backoff. Client errors (4xx) are not retried.
type Fetcher struct {
	client *http.Client
	cfg    Config
}

// New creates a fetcher backed by a caching HTTP client.
func New(cfg Config) *Fetcher {
	cfg.ApplyDefaults()
	return &Fetcher{
		client: NewCachingHTTPClient(cfg.CacheDir, cfg.Timeout),
		cfg:    cfg,
	}
}

// NewWithClient creates a fetcher using the supplied HTTP client.
func NewWithClient(client *http.Client, cfg Config) *Fetcher {
	cfg.ApplyDefaults()
	return &Fetcher{client: client, cfg: cfg}
}

// Fetch downloads the document at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	logger := zerolog.Ctx(ctx)
	metrics := telemetry.GetMetrics()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.InitialInterval

	started := time.Now()
	attempt := 0

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		metrics.FetchRequestsTotal.Add(ctx, 1)

		data, err := f.get(ctx, url)
		if err != nil {
			logger.Debug().Err(err).Str("url", url).Int("attempt", attempt).Msg("metadata fetch attempt failed")
		}
		return data, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(f.cfg.MaxTries))

	if err != nil {
		metrics.FetchErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	metrics.FetchDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.Int("attempts", attempt)))

	logger.Debug().
		Str("url", url).
		Int("bytes", len(body)).
		Int("attempts", attempt).
		Dur("duration", time.Since(started)).
		Msg("fetched metadata")

	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/samlmetadata+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	default:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, backoff.Permanent(ErrTooLarge)
	}

	return data, nil
}
