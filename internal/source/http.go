package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxRetries   = 3
	maxBodyBytes = 10 << 20
)

// retrySleep is the function used for retry backoff delays.
// It defaults to time.Sleep but can be overridden in tests.
var retrySleep = time.Sleep

// statusError is a non-2xx HTTP response.
type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.Code)
}

// Pacer spaces out requests to the same host.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPacer returns an empty pacer.
func NewPacer() *Pacer {
	return &Pacer{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to host may proceed, allowing at most one
// request per interval. A zero interval never blocks.
func (p *Pacer) Wait(ctx context.Context, host string, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	p.mu.Lock()
	lim, ok := p.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		p.limiters[host] = lim
	}
	p.mu.Unlock()
	return lim.Wait(ctx)
}

// request describes one GET issued by an adapter.
type request struct {
	url      string
	header   http.Header
	interval time.Duration
}

// get fetches a URL with pacing, a User-Agent and retries on transient failures.
func (b *base) get(ctx context.Context, req request) ([]byte, error) {
	var lastErr error
	for attempt := range maxRetries {
		body, err := b.getOnce(ctx, req)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !isRetryableError(err) {
			return nil, err
		}
		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
			b.deps.Logger.Debug("retrying request", "source", b.name, "url", req.url, "attempt", attempt+1, "error", err)
			retrySleep(backoff)
		}
	}
	return nil, lastErr
}

func (b *base) getOnce(ctx context.Context, req request) ([]byte, error) {
	if err := b.deps.Pacer.Wait(ctx, hostOf(req.url), req.interval); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", b.deps.UserAgent)
	}

	resp, err := b.deps.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", req.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{URL: req.url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.url, err)
	}
	return body, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	s := err.Error()
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "no such host")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
