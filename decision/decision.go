// Package decision stores the prior-authorization decisions (ClaimResponse
// resources) that trigger notifications.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no decision exists for an id
var ErrNotFound = errors.New("decision not found")

/* Decision is a stored ClaimResponse with the organization it belongs to
 * Uses value semantics as it represents data, not behavior
 */
type Decision struct {
	ID             string
	OrganizationID string
	Resource       json.RawMessage
	UpdatedAt      time.Time
}

// Store persists decisions; Put creates or replaces
type Store interface {
	Put(ctx context.Context, d Decision) error
	Get(ctx context.Context, id string) (Decision, error)
}
