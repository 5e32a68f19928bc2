package hooks_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/priorauth-notify/dispatch"
	"github.com/marcelsud/priorauth-notify/hooks"
	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/marcelsud/priorauth-notify/subscription/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dispatchCall struct {
	id, org  string
	resource json.RawMessage
	ctxErr   error
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchCall
	results []dispatch.Result
	err     error
	release chan struct{}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, id, org string, resource json.RawMessage) ([]dispatch.Result, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{id: id, org: org, resource: resource, ctxErr: ctx.Err()})
	return f.results, f.err
}

func TestOnDecisionUpdated(t *testing.T) {
	t.Run("dispatches with the same arguments after the request ends", func(t *testing.T) {
		d := &fakeDispatcher{release: make(chan struct{})}
		h := hooks.New(mocks.NewUseCase(t), d)

		ctx, cancel := context.WithCancel(context.Background())
		resource := json.RawMessage(`{"resourceType":"ClaimResponse","id":"CR-1"}`)
		h.OnDecisionUpdated(ctx, "CR-1", "1234567890", resource)
		cancel()
		close(d.release)

		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer waitCancel()
		require.NoError(t, h.Wait(waitCtx))

		require.Len(t, d.calls, 1)
		assert.Equal(t, "CR-1", d.calls[0].id)
		assert.Equal(t, "1234567890", d.calls[0].org)
		assert.JSONEq(t, string(resource), string(d.calls[0].resource))
		assert.NoError(t, d.calls[0].ctxErr)
	})

	t.Run("wait honours its deadline", func(t *testing.T) {
		d := &fakeDispatcher{release: make(chan struct{})}
		defer close(d.release)
		h := hooks.New(mocks.NewUseCase(t), d)

		h.OnDecisionUpdated(context.Background(), "CR-1", "org", nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
	})

	t.Run("sync variant returns results and swallows store errors", func(t *testing.T) {
		d := &fakeDispatcher{results: []dispatch.Result{{SubscriptionID: "s1", Success: true}}}
		h := hooks.New(mocks.NewUseCase(t), d)

		results := h.OnDecisionUpdatedSync(context.Background(), "CR-1", "org", nil)
		assert.Len(t, results, 1)

		d.err = errors.New("store down")
		assert.Nil(t, h.OnDecisionUpdatedSync(context.Background(), "CR-1", "org", nil))
	})
}

func TestOnSubscriptionRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		registry := mocks.NewUseCase(t)
		h := hooks.New(registry, &fakeDispatcher{})

		registry.On("Register", ctx, mock.MatchedBy(func(req subscription.Request) bool {
			return req.Endpoint == "https://payer.example.com/notify" &&
				req.PayloadType == subscription.FullResource
		})).Return(subscription.Subscription{ID: "s1", Status: subscription.Active}, nil)

		sub, err := h.OnSubscriptionRequest(ctx, []byte(`{
			"resourceType": "Subscription",
			"criteria": "org-identifier=1234567890",
			"channel": {"type": "rest-hook", "endpoint": "https://payer.example.com/notify"}
		}`))

		require.NoError(t, err)
		assert.Equal(t, subscription.Active, sub.Status)
	})

	t.Run("malformed body never reaches the registry", func(t *testing.T) {
		registry := mocks.NewUseCase(t)
		h := hooks.New(registry, &fakeDispatcher{})

		_, err := h.OnSubscriptionRequest(ctx, []byte(`not json`))

		var verr *subscription.ValidationError
		assert.ErrorAs(t, err, &verr)
		registry.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
	})
}
