package retry

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Transport is an http.RoundTripper that retries connection errors and
// retryable statuses, honoring Retry-After up to MaxRetryAfter. The last
// response is returned as-is once attempts run out.
type Transport struct {
	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper

	Policy Policy

	// MaxRetryAfter caps a server-requested wait. Default: 30s.
	MaxRetryAfter time.Duration
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	maxAfter := t.MaxRetryAfter
	if maxAfter <= 0 {
		maxAfter = 30 * time.Second
	}
	p := t.Policy.normalized()

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
		req.Body, _ = req.GetBody()
	}

	ctx := req.Context()
	delay := p.InitialDelay
	for attempt := 1; ; attempt++ {
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := base.RoundTrip(req)
		if err == nil && !RetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= p.MaxAttempts {
			return resp, err
		}
		if err != nil && ctx.Err() != nil {
			return nil, err
		}

		wait := p.jittered(delay)
		if resp != nil {
			if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
				wait = min(ra, maxAfter)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if !sleep(ctx, wait) {
			if err == nil {
				err = ctx.Err()
			}
			return nil, err
		}
		delay = p.next(delay)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0
		}
		return time.Duration(n) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Client returns an http.Client whose transport retries with p.
func Client(p Policy, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Policy: p},
	}
}
