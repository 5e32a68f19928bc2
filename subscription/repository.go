package subscription

import "context"

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// Reader provides read operations for subscriptions
type Reader interface {
	Get(ctx context.Context, id string) (Subscription, error)
	/* FindActiveByOrganization returns subscriptions in status active whose
	 * organization id equals organizationID (case-sensitive)
	 */
	FindActiveByOrganization(ctx context.Context, organizationID string) ([]Subscription, error)
	ExistsByOrgAndEndpoint(ctx context.Context, organizationID, endpoint string) (bool, error)
}

// Writer provides write operations for subscriptions
type Writer interface {
	/* Create persists a new subscription
	 * Returns ErrDuplicate when the (organization, endpoint) pair already exists,
	 * decided atomically by the store
	 */
	Create(ctx context.Context, sub Subscription) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	IncrementFailureCount(ctx context.Context, id string) error
	/* NextEventNumber increments and returns the events-since-subscription-start counter
	 */
	NextEventNumber(ctx context.Context, id string) (int64, error)
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	Reader
	Writer
	Close(ctx context.Context) error
}

// Confirmer performs the handshake delivery for a newly created subscription.
// A nil error means the endpoint answered with a 2xx status.
type Confirmer interface {
	Handshake(ctx context.Context, sub Subscription) error
}
