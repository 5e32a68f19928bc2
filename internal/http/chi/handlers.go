package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/priorauth-notify/decision"
	"github.com/marcelsud/priorauth-notify/subscription"
)

// Triggers receives the events raised by the FHIR endpoints
type Triggers interface {
	OnSubscriptionRequest(ctx context.Context, raw []byte) (subscription.Subscription, error)
	OnDecisionUpdated(ctx context.Context, claimResponseID, organizationID string, resource json.RawMessage)
}

// Services are the dependencies of the HTTP layer
type Services struct {
	Triggers  Triggers
	Registry  subscription.UseCase
	Decisions decision.Store
	// Metrics serves the Prometheus exposition; /metrics is not mounted when nil
	Metrics  http.Handler
	TopicURL string
}

// Handlers sets up the FHIR API routes
func Handlers(ctx context.Context, s Services) *chi.Mux {
	logger := httplog.NewLogger("priorauth-notify", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/fhir", func(r chi.Router) {
		r.Method(http.MethodPost, "/Subscription", postSubscription(s.Triggers, s.TopicURL))
		r.Method(http.MethodGet, "/Subscription/{id}", getSubscription(s.Registry, s.TopicURL))
		r.Method(http.MethodPut, "/ClaimResponse/{id}", putClaimResponse(s.Decisions, s.Triggers))
		r.Method(http.MethodGet, "/ClaimResponse/{id}", getClaimResponse(s.Decisions))
	})

	return r
}
