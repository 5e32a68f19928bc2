package subscription

import "fmt"

/* Status represents the lifecycle state of a subscription
 * Follows the lifecycle: Requested -> Active/Error
 * Off is only ever set by administrative action
 */
type Status int

const (
	Requested Status = iota + 1
	Active
	Error
	Off
)

// String returns the FHIR code of the status
func (s Status) String() string {
	switch s {
	case Requested:
		return "requested"
	case Active:
		return "active"
	case Error:
		return "error"
	case Off:
		return "off"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from its FHIR code
func NewStatus(str string) Status {
	switch str {
	case "requested":
		return Requested
	case "active":
		return Active
	case "error":
		return Error
	case "off":
		return Off
	default:
		return Requested
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Requested || s > Off {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// HoldsEndpoint reports whether a subscription in this status claims its
// (organization, endpoint) pair. Only requested and active ones do.
func (s Status) HoldsEndpoint() bool {
	return s == Requested || s == Active
}
