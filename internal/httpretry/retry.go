// Package httpretry wraps outbound provider calls in a per-attempt timeout
// and a bounded retry policy. Client errors (4xx) are returned as-is; server
// errors, transport failures and timeouts are retried with exponential backoff.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"address-route-optimizer/internal/ratelimit"
)

// Policy controls timeouts and retries for one provider.
type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is used when a provider is configured without one
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	AttemptTimeout: 10 * time.Second,
	BaseBackoff:    500 * time.Millisecond,
	MaxBackoff:     4 * time.Second,
}

// WithDefaults fills unset fields from DefaultPolicy
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultPolicy.AttemptTimeout
	}
	if p.BaseBackoff < 0 {
		p.BaseBackoff = 0
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultPolicy.MaxBackoff
	}
	return p
}

// Backoff returns the wait before attempt i+1 (i is zero-based).
func (p Policy) Backoff(i int) time.Duration {
	d := p.BaseBackoff
	for ; i > 0 && d < p.MaxBackoff; i-- {
		d *= 2
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// ErrExhausted is returned when every attempt failed with a retryable error
type ErrExhausted struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ErrExhausted) Unwrap() error { return e.Err }

// ErrStatus is a non-2xx response body kept for logging and classification
type ErrStatus struct {
	StatusCode int
	Body       string
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RequestFunc builds a fresh request bound to the attempt context
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Do issues the request until it succeeds, fails permanently, or the policy
// runs out of attempts. The gate is awaited before every attempt, retries
// included. A 2xx or 4xx response is returned with a nil error; the caller
// decides what a 4xx means for its provider.
func Do(ctx context.Context, client *http.Client, policy Policy, gate *ratelimit.Gate, newRequest RequestFunc) (*Response, error) {
	policy = policy.WithDefaults()
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := policy.Backoff(attempt - 1)
			log.Printf("[HTTP] Retry %d/%d: gate=%s backoff=%v err=%v", attempt, policy.MaxAttempts-1, gate.Name(), backoff, lastErr)
			if err := Sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		if err := gate.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := attemptOnce(ctx, client, policy.AttemptTimeout, newRequest)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if IsPermanent(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastStatus = resp.StatusCode
			lastErr = &ErrStatus{StatusCode: resp.StatusCode, Body: string(resp.Body)}
			continue
		}

		return resp, nil
	}

	return nil, &ErrExhausted{Attempts: policy.MaxAttempts, StatusCode: lastStatus, Err: lastErr}
}

func attemptOnce(ctx context.Context, client *http.Client, timeout time.Duration, newRequest RequestFunc) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := newRequest(attemptCtx)
	if err != nil {
		return nil, &permanentError{err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// permanentError marks failures that retrying cannot fix (malformed request)
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err came from building the request itself
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
