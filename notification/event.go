package notification

import (
	"encoding/json"
	"time"
)

// EventType is the kind of notification being sent to a subscriber
type EventType int

const (
	Handshake EventType = iota + 1
	EventNotification
)

// String returns the backport notification type code
func (t EventType) String() string {
	switch t {
	case Handshake:
		return "handshake"
	case EventNotification:
		return "event-notification"
	default:
		return "unknown"
	}
}

/* Event describes a change to a ClaimResponse that subscribers are told about
 * Transient, it is never persisted
 */
type Event struct {
	ClaimResponseID string
	OrganizationID  string
	Type            EventType
	Timestamp       time.Time
	// Resource is the full ClaimResponse; only sent for full-resource subscriptions
	Resource json.RawMessage
}
