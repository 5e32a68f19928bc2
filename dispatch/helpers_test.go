package dispatch_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/priorauth-notify/delivery"
	"github.com/marcelsud/priorauth-notify/notification"
	"github.com/marcelsud/priorauth-notify/policy"
	"github.com/stretchr/testify/require"
)

// subscriber is a test endpoint that records every notification it receives
type subscriber struct {
	*httptest.Server
	status int

	mu       sync.Mutex
	received []notification.Envelope
	auth     []string
}

func newSubscriber(t *testing.T, status int) *subscriber {
	t.Helper()
	s := &subscriber{status: status}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		env, err := notification.Parse(data)
		s.mu.Lock()
		if err == nil {
			s.received = append(s.received, env)
		}
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		status := s.status
		s.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *subscriber) setStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *subscriber) envelopes() []notification.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Envelope(nil), s.received...)
}

// unreachableEndpoint returns the URL of a server that is already closed
func unreachableEndpoint(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()
	return endpoint
}

func newBuilder(t *testing.T) *notification.Builder {
	t.Helper()
	base, err := url.Parse("https://pas.example.com/fhir")
	require.NoError(t, err)
	return notification.NewBuilder(base, "http://example.com/SubscriptionTopic/decision-change")
}

// newEngine returns an engine that retries without waiting
func newEngine() *delivery.Engine {
	return delivery.NewEngine(nil, delivery.WithWaitFunc(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
}

// countingDeliverer counts deliveries without any network traffic
type countingDeliverer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingDeliverer) Deliver(context.Context, delivery.Target, []byte, policy.Policy) delivery.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return delivery.Outcome{Success: true, StatusCode: http.StatusOK, Attempts: 1}
}
