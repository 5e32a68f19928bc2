// Package dispatch fans decision changes out to every active subscriber of an
// organization and performs subscription handshakes.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marcelsud/priorauth-notify/delivery"
	"github.com/marcelsud/priorauth-notify/metrics"
	"github.com/marcelsud/priorauth-notify/notification"
	"github.com/marcelsud/priorauth-notify/policy"
	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrHandshakeFailed is returned when a subscriber does not accept the handshake
var ErrHandshakeFailed = errors.New("handshake failed")

// DefaultConcurrency bounds concurrent deliveries of one dispatch
const DefaultConcurrency = 16

// Deliverer sends one envelope to one target
type Deliverer interface {
	Deliver(ctx context.Context, target delivery.Target, body []byte, p policy.Policy) delivery.Outcome
}

/* Dispatcher matches events to subscribers and delivers notifications
 * Uses pointer semantics as it's an API, not data
 */
type Dispatcher struct {
	repo        subscription.Repository
	builder     *notification.Builder
	deliverer   Deliverer
	policies    *policy.Loader
	recorder    metrics.Recorder
	concurrency int
}

// Option is a functional option for configuring a Dispatcher
type Option func(*Dispatcher)

// WithConcurrency bounds the number of concurrent deliveries per dispatch
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithRecorder records every delivery
func WithRecorder(r metrics.Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// NewDispatcher creates a dispatcher with dependency injection
func NewDispatcher(repo subscription.Repository, builder *notification.Builder, deliverer Deliverer, policies *policy.Loader, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:        repo,
		builder:     builder,
		deliverer:   deliverer,
		policies:    policies,
		recorder:    metrics.NopRecorder{},
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch notifies every active subscriber of organizationID that the
// ClaimResponse claimResponseID changed. Only a store lookup failure is
// returned as an error; each delivery failure is reported in its Result and
// never affects the other subscribers.
func (d *Dispatcher) Dispatch(ctx context.Context, claimResponseID, organizationID string, resource json.RawMessage) ([]Result, error) {
	subs, err := d.repo.FindActiveByOrganization(ctx, organizationID)
	if err != nil {
		return nil, &subscription.StoreError{Op: "finding active subscriptions", Err: err}
	}

	results := make([]Result, len(subs))
	if len(subs) == 0 {
		log.Warn().
			Str("organization_id", organizationID).
			Str("claim_response_id", claimResponseID).
			Msg("No active subscriptions for organization")
		return results, nil
	}

	event := notification.Event{
		ClaimResponseID: claimResponseID,
		OrganizationID:  organizationID,
		Type:            notification.EventNotification,
		Resource:        resource,
	}
	p := d.policies.EventNotification()

	// Tasks never return an error and use ctx rather than the group context,
	// so one failing subscriber cannot cancel its siblings
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			results[i] = d.notify(ctx, sub, event, p)
			return nil
		})
	}
	_ = g.Wait()

	succeeded, failed := Summary(results)
	log.Info().
		Str("organization_id", organizationID).
		Str("claim_response_id", claimResponseID).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("Dispatch completed")
	return results, nil
}

func (d *Dispatcher) notify(ctx context.Context, sub subscription.Subscription, event notification.Event, p policy.Policy) Result {
	result := Result{
		SubscriptionID: sub.ID,
		Endpoint:       sub.Endpoint,
	}

	n, err := d.repo.NextEventNumber(ctx, sub.ID)
	if err != nil {
		log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("Could not take next event number")
		n = 0
	}
	sub.EventsSinceStart = n

	body, err := d.builder.Build(sub, event).Bytes()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	outcome := d.deliverer.Deliver(ctx, delivery.Target{Endpoint: sub.Endpoint, AuthHeader: sub.AuthHeader}, body, p)
	d.recorder.RecordDelivery(ctx, event.Type.String(), outcome.Success, outcome.Duration)

	result.Success = outcome.Success
	result.HTTPStatus = outcome.StatusCode
	result.Attempts = outcome.Attempts
	result.Skipped = outcome.Skipped
	if outcome.Success {
		return result
	}
	if outcome.Err != nil {
		result.Error = outcome.Err.Error()
	}

	log.Warn().Err(outcome.Err).
		Str("subscription_id", sub.ID).
		Str("endpoint", sub.Endpoint).
		Int("status_code", outcome.StatusCode).
		Int("attempts", outcome.Attempts).
		Bool("skipped", outcome.Skipped).
		Msg("Notification delivery failed")
	if err := d.repo.IncrementFailureCount(ctx, sub.ID); err != nil {
		log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("Could not increment failure count")
	}
	return result
}

// Handshake sends the handshake notification to a newly created subscription
// using the handshake policy. It implements subscription.Confirmer.
func (d *Dispatcher) Handshake(ctx context.Context, sub subscription.Subscription) error {
	body, err := d.builder.Build(sub, notification.Event{Type: notification.Handshake}).Bytes()
	if err != nil {
		return fmt.Errorf("building handshake: %w", err)
	}

	outcome := d.deliverer.Deliver(ctx, delivery.Target{Endpoint: sub.Endpoint, AuthHeader: sub.AuthHeader}, body, d.policies.Handshake())
	d.recorder.RecordDelivery(ctx, notification.Handshake.String(), outcome.Success, outcome.Duration)
	if outcome.Success {
		return nil
	}
	if outcome.StatusCode != 0 {
		return fmt.Errorf("%w: endpoint %s answered %d", ErrHandshakeFailed, sub.Endpoint, outcome.StatusCode)
	}
	return fmt.Errorf("%w: %v", ErrHandshakeFailed, outcome.Err)
}

var _ subscription.Confirmer = (*Dispatcher)(nil)
