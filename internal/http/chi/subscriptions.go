package chi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/priorauth-notify/subscription"
)

// maxBodyBytes bounds inbound FHIR resources
const maxBodyBytes = 10 << 20

// readBody reads the whole request body; a body over maxBodyBytes fails with *http.MaxBytesError
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &subscription.ValidationError{Message: "failed to read request body"}
	}
	return body, nil
}

/* HTTP layer DTOs for the FHIR Subscription resource
 * Separate from domain entities to avoid leaking internal structure
 * The auth header is write-only and never echoed
 */

type subscriptionResponse struct {
	ResourceType string              `json:"resourceType"`
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Reason       string              `json:"reason,omitempty"`
	Criteria     string              `json:"criteria"`
	CriteriaExt  *primitiveExtension `json:"_criteria,omitempty"`
	End          string              `json:"end,omitempty"`
	Channel      channelResponse     `json:"channel"`
}

type channelResponse struct {
	Type       string              `json:"type"`
	Endpoint   string              `json:"endpoint"`
	Payload    string              `json:"payload"`
	PayloadExt *primitiveExtension `json:"_payload,omitempty"`
}

type primitiveExtension struct {
	Extension []extensionResponse `json:"extension"`
}

type extensionResponse struct {
	URL         string `json:"url"`
	ValueString string `json:"valueString,omitempty"`
	ValueCode   string `json:"valueCode,omitempty"`
}

func toSubscriptionResponse(sub subscription.Subscription, topicURL string) subscriptionResponse {
	res := subscriptionResponse{
		ResourceType: "Subscription",
		ID:           sub.ID,
		Status:       sub.Status.String(),
		Criteria:     topicURL,
		CriteriaExt: &primitiveExtension{Extension: []extensionResponse{{
			URL:         subscription.FilterCriteriaExtensionURL,
			ValueString: "org-identifier=" + sub.OrganizationID,
		}}},
		Channel: channelResponse{
			Type:     "rest-hook",
			Endpoint: sub.Endpoint,
			Payload:  "application/fhir+json",
			PayloadExt: &primitiveExtension{Extension: []extensionResponse{{
				URL:       subscription.PayloadContentExtensionURL,
				ValueCode: sub.PayloadType.String(),
			}}},
		},
	}
	if sub.Status == subscription.Error {
		res.Reason = "handshake failed"
	}
	if sub.EndTime != nil {
		res.End = sub.EndTime.Format(time.RFC3339)
	}
	return res
}

// postSubscription handles POST /fhir/Subscription
func postSubscription(triggers interface {
	OnSubscriptionRequest(ctx context.Context, raw []byte) (subscription.Subscription, error)
}, topicURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}

		sub, err := triggers.OnSubscriptionRequest(r.Context(), body)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Location", sub.Reference())
		writeResource(w, http.StatusCreated, toSubscriptionResponse(sub, topicURL))
	})
}

// getSubscription handles GET /fhir/Subscription/{id}
func getSubscription(registry subscription.UseCase, topicURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := registry.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeResource(w, http.StatusOK, toSubscriptionResponse(sub, topicURL))
	})
}
