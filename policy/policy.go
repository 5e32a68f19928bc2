package policy

import (
	"fmt"
	"time"
)

const (
	// HandshakeName is the policy used when confirming a new subscription
	HandshakeName = "handshake"
	// EventNotificationName is the policy used for decision change notifications
	EventNotificationName = "event-notification"
)

/* Policy bounds one delivery: per-attempt timeout and fixed-delay retries
 * Attempts = 1 + MaxRetries
 */
type Policy struct {
	Name       string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultHandshake returns the handshake policy: short, never retried
func DefaultHandshake() Policy {
	return Policy{
		Name:    HandshakeName,
		Timeout: 5 * time.Second,
	}
}

// DefaultEventNotification returns the event-notification policy
func DefaultEventNotification() Policy {
	return Policy{
		Name:       EventNotificationName,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
	}
}

// IsHandshake reports whether the policy governs subscription handshakes
func (p Policy) IsHandshake() bool {
	return p.Name == HandshakeName
}

// Attempts returns the total number of attempts the policy allows
func (p Policy) Attempts() int {
	return 1 + p.MaxRetries
}

// Validate checks if the policy is usable
func (p Policy) Validate() error {
	if p.Name != HandshakeName && p.Name != EventNotificationName {
		return fmt.Errorf("unknown policy %q", p.Name)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive for policy %s", p.Name)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative for policy %s", p.Name)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative for policy %s", p.Name)
	}
	// Registration waits on the handshake, so it is never retried
	if p.Name == HandshakeName && p.MaxRetries > 0 {
		return fmt.Errorf("policy %s does not allow retries (got %d)", p.Name, p.MaxRetries)
	}
	return nil
}
