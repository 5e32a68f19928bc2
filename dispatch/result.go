package dispatch

// Result is the outcome of notifying one subscriber
type Result struct {
	SubscriptionID string
	Endpoint       string
	Success        bool
	HTTPStatus     int // 0 when no response was received
	Error          string
	Attempts       int
	Skipped        bool // an open circuit breaker refused the delivery
}

// Summary counts successes and failures across results
func Summary(results []Result) (succeeded, failed int) {
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
