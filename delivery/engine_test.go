package delivery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/priorauth-notify/delivery"
	"github.com/marcelsud/priorauth-notify/policy"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var body = []byte(`{"resourceType":"Bundle","type":"history"}`)

func retryPolicy(retries int) policy.Policy {
	return policy.Policy{
		Name:       policy.EventNotificationName,
		Timeout:    time.Second,
		MaxRetries: retries,
		RetryDelay: 5 * time.Second,
	}
}

// recordWaits replaces the retry delay with a recorder
func recordWaits(waits *[]time.Duration) delivery.Option {
	var mu sync.Mutex
	return delivery.WithWaitFunc(func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*waits = append(*waits, d)
		return ctx.Err()
	})
}

func TestDeliver_Success(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	engine := delivery.NewEngine(nil)
	outcome := engine.Deliver(context.Background(),
		delivery.Target{Endpoint: server.URL, AuthHeader: "Bearer abc.def"},
		body, retryPolicy(3))

	require.True(t, outcome.Success)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, http.StatusAccepted, outcome.StatusCode)
	assert.Equal(t, 1, outcome.Attempts)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/fhir+json", got.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer abc.def", got.Header.Get("Authorization"))
	assert.JSONEq(t, string(body), string(gotBody))
}

func TestDeliver_NoAuthHeader(t *testing.T) {
	var hasAuth atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header["Authorization"]
		hasAuth.Store(ok)
	}))
	defer server.Close()

	outcome := delivery.NewEngine(nil).Deliver(context.Background(),
		delivery.Target{Endpoint: server.URL}, body, retryPolicy(0))

	require.True(t, outcome.Success)
	assert.False(t, hasAuth.Load())
}

func TestDeliver_Retries(t *testing.T) {
	t.Run("success after a failed attempt", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		var waits []time.Duration
		engine := delivery.NewEngine(nil, recordWaits(&waits))
		outcome := engine.Deliver(context.Background(), delivery.Target{Endpoint: server.URL}, body, retryPolicy(2))

		require.True(t, outcome.Success)
		assert.Equal(t, 2, outcome.Attempts)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, []time.Duration{5 * time.Second}, waits)
	})

	t.Run("exhausted retries report the last status", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		var waits []time.Duration
		engine := delivery.NewEngine(nil, recordWaits(&waits))
		outcome := engine.Deliver(context.Background(), delivery.Target{Endpoint: server.URL}, body, retryPolicy(2))

		assert.False(t, outcome.Success)
		assert.Equal(t, 3, outcome.Attempts)
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, http.StatusServiceUnavailable, outcome.StatusCode)
		assert.ErrorIs(t, outcome.Err, delivery.ErrUnexpectedStatus)
		assert.Len(t, waits, 2)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		engine := delivery.NewEngine(nil, delivery.WithWaitFunc(func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		}))
		outcome := engine.Deliver(ctx, delivery.Target{Endpoint: server.URL}, body, retryPolicy(3))

		assert.False(t, outcome.Success)
		assert.Equal(t, 1, outcome.Attempts)
		assert.ErrorIs(t, outcome.Err, context.Canceled)
	})
}

func TestDeliver_UniformFailures(t *testing.T) {
	t.Run("redirect is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		}))
		defer server.Close()

		outcome := delivery.NewEngine(nil).Deliver(context.Background(), delivery.Target{Endpoint: server.URL}, body, retryPolicy(0))

		assert.False(t, outcome.Success)
		assert.Equal(t, http.StatusFound, outcome.StatusCode)
	})

	t.Run("client error is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		outcome := delivery.NewEngine(nil).Deliver(context.Background(), delivery.Target{Endpoint: server.URL}, body, retryPolicy(0))

		assert.False(t, outcome.Success)
		assert.Equal(t, http.StatusUnauthorized, outcome.StatusCode)
	})

	t.Run("refused connection is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		endpoint := server.URL
		server.Close()

		outcome := delivery.NewEngine(nil).Deliver(context.Background(), delivery.Target{Endpoint: endpoint}, body, retryPolicy(0))

		assert.False(t, outcome.Success)
		assert.Equal(t, 0, outcome.StatusCode)
		assert.Error(t, outcome.Err)
	})

	t.Run("attempt timeout is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		p := retryPolicy(0)
		p.Timeout = 50 * time.Millisecond
		outcome := delivery.NewEngine(nil).Deliver(context.Background(), delivery.Target{Endpoint: server.URL}, body, p)

		assert.False(t, outcome.Success)
		assert.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
	})
}

func TestDeliver_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	engine := delivery.NewEngine(nil, delivery.WithBreaker(2, time.Minute))
	defer engine.Close()

	target := delivery.Target{Endpoint: server.URL}
	for i := 0; i < 2; i++ {
		outcome := engine.Deliver(context.Background(), target, body, retryPolicy(0))
		assert.ErrorIs(t, outcome.Err, delivery.ErrUnexpectedStatus)
	}

	outcome := engine.Deliver(context.Background(), target, body, retryPolicy(0))

	assert.False(t, outcome.Success)
	assert.True(t, outcome.Skipped)
	assert.Zero(t, outcome.Attempts)
	assert.ErrorIs(t, outcome.Err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDeliver_OpenBreakerStopsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var waits []time.Duration
	engine := delivery.NewEngine(nil, delivery.WithBreaker(2, time.Minute), recordWaits(&waits))
	defer engine.Close()

	outcome := engine.Deliver(context.Background(), delivery.Target{Endpoint: server.URL}, body, retryPolicy(5))

	assert.False(t, outcome.Success)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, outcome.StatusCode)
	assert.ErrorIs(t, outcome.Err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
	// one wait before the second request, one before the breaker refused the third
	assert.Len(t, waits, 2)
}

func TestDeliver_HandshakeBypassesOpenBreaker(t *testing.T) {
	var healthy atomic.Bool
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	engine := delivery.NewEngine(nil, delivery.WithBreaker(2, time.Minute))
	defer engine.Close()

	target := delivery.Target{Endpoint: server.URL}
	for i := 0; i < 2; i++ {
		engine.Deliver(context.Background(), target, body, retryPolicy(0))
	}
	outcome := engine.Deliver(context.Background(), target, body, retryPolicy(0))
	require.True(t, outcome.Skipped)

	healthy.Store(true)
	outcome = engine.Deliver(context.Background(), target, body, policy.DefaultHandshake())

	require.True(t, outcome.Success)
	assert.False(t, outcome.Skipped)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, int32(3), calls.Load())

	// the confirmed endpoint gets event deliveries again
	outcome = engine.Deliver(context.Background(), target, body, retryPolicy(0))
	assert.True(t, outcome.Success)
	assert.Equal(t, int32(4), calls.Load())
}
