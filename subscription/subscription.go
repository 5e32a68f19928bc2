package subscription

import "time"

/* Subscription represents one registered interest in an organization's
 * prior-authorization decision changes.
 * Uses value semantics as it represents data, not behavior
 */
type Subscription struct {
	ID               string
	OrganizationID   string
	Endpoint         string
	AuthHeader       string
	PayloadType      PayloadType
	Status           Status
	EndTime          *time.Time
	FailureCount     int
	EventsSinceStart int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Reference returns the relative FHIR reference of the subscription
func (s Subscription) Reference() string {
	return "Subscription/" + s.ID
}
