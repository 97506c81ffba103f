package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/price-spread/internal/ratelimit"
)

const maxBodyBytes = 16 << 20

type FetcherOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Limiter   ratelimit.RateLimiter
}

func DefaultFetcherOptions() FetcherOptions {
	return FetcherOptions{
		Timeout:   15 * time.Second,
		UserAgent: "Chrome/51.0.2704.103 Safari/537.36",
		Headers: map[string]string{
			"Accept": "*/*",
		},
	}
}

// HTTPFetcher issues paced GET requests for JSON endpoints.
type HTTPFetcher struct {
	client *http.Client
	opts   FetcherOptions
	logger *slog.Logger
}

func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetcherOptions().Timeout
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		logger: slog.Default().With("component", "http_fetcher"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.opts.Limiter != nil {
		if err := f.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.record(false)
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.record(false)
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		f.record(false)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	f.record(true)
	f.logger.Debug("fetched", "url", url, "bytes", len(body), "duration", time.Since(start))
	return body, nil
}

func (f *HTTPFetcher) record(ok bool) {
	a, isAdaptive := f.opts.Limiter.(*ratelimit.AdaptiveRateLimiter)
	if !isAdaptive {
		return
	}
	if ok {
		a.RecordSuccess()
	} else {
		a.RecordError()
	}
}
