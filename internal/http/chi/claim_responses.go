package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/priorauth-notify/decision"
	"github.com/marcelsud/priorauth-notify/subscription"
)

// putClaimResponse handles PUT /fhir/ClaimResponse/{id}
// The requestor organization identifier decides which subscribers are notified.
func putClaimResponse(decisions decision.Store, triggers interface {
	OnDecisionUpdated(ctx context.Context, claimResponseID, organizationID string, resource json.RawMessage)
}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		body, err := readBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}

		d, err := decision.Parse(body)
		if err != nil {
			writeError(w, err)
			return
		}
		if d.ID != id {
			writeError(w, &subscription.ValidationError{Message: "resource id does not match the request path"})
			return
		}

		if err := decisions.Put(r.Context(), d); err != nil {
			writeError(w, fmt.Errorf("storing claim response: %w", err))
			return
		}

		triggers.OnDecisionUpdated(r.Context(), d.ID, d.OrganizationID, d.Resource)

		w.Header().Set("Content-Type", fhirclient.FhirJsonMediaType)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}

// getClaimResponse handles GET /fhir/ClaimResponse/{id}
func getClaimResponse(decisions decision.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := decisions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", fhirclient.FhirJsonMediaType)
		w.WriteHeader(http.StatusOK)
		w.Write(d.Resource)
	})
}
