package subscription

import "fmt"

/* PayloadType controls how much of the changed resource a notification carries
 * FullResource appends the resource as a second bundle entry
 * IDOnly and Empty send the status section only
 */
type PayloadType int

const (
	FullResource PayloadType = iota + 1
	IDOnly
	Empty
)

// String returns the backport payload-content code
func (p PayloadType) String() string {
	switch p {
	case FullResource:
		return "full-resource"
	case IDOnly:
		return "id-only"
	case Empty:
		return "empty"
	default:
		return "unknown"
	}
}

// NewPayloadType creates a PayloadType from a payload-content code.
// Missing or unrecognized codes fall back to FullResource.
func NewPayloadType(s string) PayloadType {
	switch s {
	case "id-only":
		return IDOnly
	case "empty":
		return Empty
	default:
		return FullResource
	}
}

// Validate checks if the payload type is valid
func (p PayloadType) Validate() error {
	if p < FullResource || p > Empty {
		return fmt.Errorf("invalid payload type: %d", p)
	}
	return nil
}
