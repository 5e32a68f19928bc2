// Package hooks is the entry point for resource-server events: a changed
// prior-authorization decision and a new subscription request.
package hooks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/marcelsud/priorauth-notify/dispatch"
	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/rs/zerolog/log"
)

// Dispatcher notifies the subscribers of an organization
type Dispatcher interface {
	Dispatch(ctx context.Context, claimResponseID, organizationID string, resource json.RawMessage) ([]dispatch.Result, error)
}

/* Hooks connects inbound triggers to the registry and the dispatcher
 * Uses pointer semantics as it's an API, not data
 */
type Hooks struct {
	registry   subscription.UseCase
	dispatcher Dispatcher
	inflight   sync.WaitGroup
}

// New creates hooks with dependency injection
func New(registry subscription.UseCase, dispatcher Dispatcher) *Hooks {
	return &Hooks{
		registry:   registry,
		dispatcher: dispatcher,
	}
}

// OnDecisionUpdated dispatches notifications for a changed ClaimResponse in the
// background. The caller is never blocked or failed by the dispatch; request
// cancellation does not stop it.
func (h *Hooks) OnDecisionUpdated(ctx context.Context, claimResponseID, organizationID string, resource json.RawMessage) {
	detached := context.WithoutCancel(ctx)

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.dispatch(detached, claimResponseID, organizationID, resource)
	}()
}

// OnDecisionUpdatedSync dispatches in the caller's goroutine and returns the results
func (h *Hooks) OnDecisionUpdatedSync(ctx context.Context, claimResponseID, organizationID string, resource json.RawMessage) []dispatch.Result {
	return h.dispatch(ctx, claimResponseID, organizationID, resource)
}

func (h *Hooks) dispatch(ctx context.Context, claimResponseID, organizationID string, resource json.RawMessage) []dispatch.Result {
	results, err := h.dispatcher.Dispatch(ctx, claimResponseID, organizationID, resource)
	if err != nil {
		log.Error().Err(err).
			Str("claim_response_id", claimResponseID).
			Str("organization_id", organizationID).
			Msg("Dispatch failed")
		return nil
	}
	return results
}

// OnSubscriptionRequest parses a FHIR Subscription and registers it
func (h *Hooks) OnSubscriptionRequest(ctx context.Context, raw []byte) (subscription.Subscription, error) {
	req, err := subscription.ParseRequest(raw)
	if err != nil {
		return subscription.Subscription{}, err
	}
	return h.registry.Register(ctx, req)
}

// Wait blocks until every background dispatch has finished or ctx is done
func (h *Hooks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
