package metrics

import (
	"context"
	"time"
)

// Collector reports the state of the subscription store.
type Collector interface {
	// GetStatusCounts returns the count of subscriptions by status
	GetStatusCounts(ctx context.Context) (map[string]int64, error)
}

// Recorder records notification deliveries as they happen.
type Recorder interface {
	// RecordDelivery records one delivery of the given notification type
	RecordDelivery(ctx context.Context, notificationType string, success bool, duration time.Duration)
}

// NopRecorder discards everything it records.
type NopRecorder struct{}

func (NopRecorder) RecordDelivery(context.Context, string, bool, time.Duration) {}

// Outcome returns the delivery.outcome attribute value
func Outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
