package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

/* Registry represents the business logic layer for subscriptions
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the business operations for subscription management
type UseCase interface {
	Register(ctx context.Context, req Request) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
}

type Registry struct {
	Repo      Repository
	Confirmer Confirmer
}

// NewRegistry creates a new subscription registry with dependency injection
func NewRegistry(repo Repository, confirmer Confirmer) *Registry {
	return &Registry{
		Repo:      repo,
		Confirmer: confirmer,
	}
}

// Register validates the request, persists a new subscription in status
// requested and performs the handshake. The returned subscription carries
// the final status: active when the handshake succeeded, error otherwise.
func (r *Registry) Register(ctx context.Context, req Request) (Subscription, error) {
	if req.Endpoint == "" {
		return Subscription{}, validationError("endpoint required")
	}
	if err := validateEndpoint(req.Endpoint); err != nil {
		return Subscription{}, err
	}
	orgID, err := req.OrganizationID()
	if err != nil {
		return Subscription{}, err
	}

	exists, err := r.Repo.ExistsByOrgAndEndpoint(ctx, orgID, req.Endpoint)
	if err != nil {
		return Subscription{}, &StoreError{Op: "checking existing subscription", Err: err}
	}
	if exists {
		return Subscription{}, &ConflictError{OrganizationID: orgID, Endpoint: req.Endpoint}
	}

	payloadType := req.PayloadType
	if payloadType.Validate() != nil {
		payloadType = FullResource
	}
	now := time.Now()
	sub := Subscription{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Endpoint:       req.Endpoint,
		AuthHeader:     req.AuthHeader,
		PayloadType:    payloadType,
		Status:         Requested,
		EndTime:        req.EndTime,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Repo.Create(ctx, sub); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Subscription{}, &ConflictError{OrganizationID: orgID, Endpoint: req.Endpoint}
		}
		return Subscription{}, &StoreError{Op: "creating subscription", Err: err}
	}

	status := Active
	if err := r.Confirmer.Handshake(ctx, sub); err != nil {
		log.Warn().Err(err).
			Str("subscription_id", sub.ID).
			Str("endpoint", sub.Endpoint).
			Msg("Handshake failed, subscription set to error")
		status = Error
	}
	// The record must leave requested even when the caller has gone away
	if err := r.Repo.UpdateStatus(context.WithoutCancel(ctx), sub.ID, status); err != nil {
		return Subscription{}, &StoreError{Op: "updating subscription status", Err: err}
	}
	sub.Status = status
	sub.UpdatedAt = time.Now()

	log.Info().
		Str("subscription_id", sub.ID).
		Str("organization_id", sub.OrganizationID).
		Str("status", sub.Status.String()).
		Msg("Subscription registered")
	return sub, nil
}

// Get retrieves a subscription by id
func (r *Registry) Get(ctx context.Context, id string) (Subscription, error) {
	sub, err := r.Repo.Get(ctx, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	return sub, nil
}

// validateEndpoint accepts absolute http and https URLs only
func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return validationError("endpoint must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validationError("endpoint scheme must be http or https")
	}
	return nil
}
