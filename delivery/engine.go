// Package delivery posts notification envelopes to subscriber endpoints with a
// per-attempt timeout, fixed-delay retries and a per-endpoint circuit breaker.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/jellydator/ttlcache/v3"
	"github.com/marcelsud/priorauth-notify/policy"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// ErrUnexpectedStatus is returned for any response outside [200,300)
var ErrUnexpectedStatus = errors.New("subscriber returned non-2xx status")

// maxDrainBytes bounds how much of a response body is read before closing it
const maxDrainBytes = 1024

// breakerTTL evicts breakers of endpoints that have not been used for a while
const breakerTTL = 30 * time.Minute

// Target is the destination of one delivery
type Target struct {
	Endpoint string
	// AuthHeader is sent verbatim as the Authorization header when set
	AuthHeader string
}

// Outcome describes one delivery; failures of any kind are reported here,
// never as a panic or returned error
type Outcome struct {
	Success    bool
	StatusCode int  // 0 when no response was received
	Attempts   int  // requests actually sent
	Skipped    bool // an open circuit breaker ended the delivery early
	Err        error
	Duration   time.Duration
}

type breaker = gobreaker.CircuitBreaker[int]

/* Engine delivers notifications over HTTP
 * Uses pointer semantics as it's an API, not data
 */
type Engine struct {
	client           fhirclient.HttpRequestDoer
	breakers         *ttlcache.Cache[string, *breaker]
	breakerThreshold uint32
	breakerTimeout   time.Duration
	waitFn           func(ctx context.Context, d time.Duration) error
}

// Option is a functional option for configuring an Engine
type Option func(*Engine)

// WithBreaker enables a per-endpoint circuit breaker that opens after threshold
// consecutive failed attempts and half-opens after openTimeout. A zero threshold disables it.
func WithBreaker(threshold int, openTimeout time.Duration) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.breakerThreshold = uint32(threshold)
		}
		e.breakerTimeout = openTimeout
	}
}

// WithWaitFunc overrides the wait between retries.
// This is intended for testing to avoid real delays.
func WithWaitFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.waitFn = fn
	}
}

// NewEngine creates a delivery engine. A nil client gets a default one that
// does not follow redirects, so a 3xx counts as a failed attempt.
func NewEngine(client fhirclient.HttpRequestDoer, opts ...Option) *Engine {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	e := &Engine{
		client: client,
		waitFn: waitContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.breakerThreshold > 0 {
		e.breakers = ttlcache.New[string, *breaker](
			ttlcache.WithTTL[string, *breaker](breakerTTL),
		)
		go e.breakers.Start()
	}
	return e
}

// Close stops the breaker cache janitor
func (e *Engine) Close() {
	if e.breakers != nil {
		e.breakers.Stop()
	}
}

// Deliver posts body to the target, retrying with a fixed delay as the policy allows.
// Attempts are strictly sequential; a cancelled context ends the delivery early.
// Handshakes bypass the circuit breaker, and a successful one closes it.
// An open breaker ends an event delivery at once without counting an attempt.
func (e *Engine) Deliver(ctx context.Context, target Target, body []byte, p policy.Policy) Outcome {
	start := time.Now()
	var outcome Outcome

	var cb *breaker
	if !p.IsHandshake() {
		cb = e.breaker(target.Endpoint)
	}

	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		if attempt > 1 {
			if err := e.waitFn(ctx, p.RetryDelay); err != nil {
				outcome.Err = fmt.Errorf("waiting to retry: %w", err)
				break
			}
		}

		status, err := e.attempt(ctx, cb, target, body, p.Timeout)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome.Skipped = true
			outcome.Err = fmt.Errorf("delivery skipped: %w", err)
			break
		}
		outcome.Attempts = attempt
		outcome.StatusCode = status
		outcome.Err = err
		if err == nil {
			outcome.Success = true
			break
		}

		log.Debug().Err(err).
			Str("endpoint", target.Endpoint).
			Str("policy", p.Name).
			Int("attempt", attempt).
			Int("status_code", status).
			Msg("Delivery attempt failed")
	}

	if outcome.Success && p.IsHandshake() && e.breakers != nil {
		// a confirmed endpoint starts over with a closed breaker
		e.breakers.Delete(target.Endpoint)
	}

	outcome.Duration = time.Since(start)
	return outcome
}

func (e *Engine) attempt(ctx context.Context, cb *breaker, target Target, body []byte, timeout time.Duration) (int, error) {
	if cb == nil {
		return e.send(ctx, target, body, timeout)
	}
	return cb.Execute(func() (int, error) {
		return e.send(ctx, target, body, timeout)
	})
}

func (e *Engine) send(ctx context.Context, target Target, body []byte, timeout time.Duration) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", fhirclient.FhirJsonMediaType)
	if target.AuthHeader != "" {
		req.Header.Set("Authorization", target.AuthHeader)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return resp.StatusCode, nil
}

func (e *Engine) breaker(endpoint string) *breaker {
	if e.breakers == nil {
		return nil
	}
	if item := e.breakers.Get(endpoint); item != nil {
		return item.Value()
	}

	threshold := e.breakerThreshold
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Timeout:     e.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("endpoint", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	item, _ := e.breakers.GetOrSet(endpoint, cb)
	return item.Value()
}

func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
