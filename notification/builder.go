package notification

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

const (
	// NotificationProfile is the backport profile of the notification Bundle
	NotificationProfile = "http://hl7.org/fhir/uv/subscriptions-backport/StructureDefinition/backport-subscription-notification-r4"
	// StatusProfile is the backport profile of the subscription-status Parameters
	StatusProfile = "http://hl7.org/fhir/uv/subscriptions-backport/StructureDefinition/backport-subscription-status-r4"

	claimResponseType = "ClaimResponse"
)

/* Builder assembles notification envelopes for subscribers
 * Uses pointer semantics as it's an API, not data
 */
type Builder struct {
	baseURL *url.URL
	topic   string
	now     func() time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithClock overrides the clock used for bundle and event timestamps
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a builder that renders references against baseURL
func NewBuilder(baseURL *url.URL, topic string, opts ...Option) *Builder {
	b := &Builder{
		baseURL: baseURL,
		topic:   topic,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build creates the history Bundle for one subscriber.
// The status entry is always first; the changed resource follows it only for
// full-resource subscriptions receiving an event-notification.
func (b *Builder) Build(sub subscription.Subscription, event Event) Envelope {
	now := b.now().UTC()
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	subscriptionURL := b.baseURL.JoinPath("Subscription", sub.ID).String()
	params := fhir.Parameters{
		Id: ptr(uuid.NewString()),
		Meta: &fhir.Meta{
			Profile: []string{StatusProfile},
		},
		Parameter: []fhir.ParametersParameter{
			{
				Name:           "subscription",
				ValueReference: &fhir.Reference{Reference: ptr(subscriptionURL)},
			},
			{
				Name:           "topic",
				ValueCanonical: ptr(b.topic),
			},
			{
				Name:      "status",
				ValueCode: ptr(sub.Status.String()),
			},
			{
				Name:      "type",
				ValueCode: ptr(event.Type.String()),
			},
			{
				Name:        "events-since-subscription-start",
				ValueString: ptr(strconv.FormatInt(sub.EventsSinceStart, 10)),
			},
		},
	}
	if event.Type == EventNotification {
		params.Parameter = append(params.Parameter, fhir.ParametersParameter{
			Name: "notification-event",
			Part: []fhir.ParametersParameter{
				{
					Name:        "event-number",
					ValueString: ptr(strconv.FormatInt(sub.EventsSinceStart, 10)),
				},
				{
					Name:         "timestamp",
					ValueInstant: ptr(timestamp.Format(time.RFC3339)),
				},
				{
					Name: "focus",
					ValueReference: &fhir.Reference{
						Reference: ptr(b.focusURL(event.ClaimResponseID)),
						Type:      ptr(claimResponseType),
					},
				},
			},
		})
	}

	// Parameters only holds marshalable fields, the error is always nil
	paramsJSON, _ := json.Marshal(params)
	bundle := fhir.Bundle{
		Id: ptr(uuid.NewString()),
		Meta: &fhir.Meta{
			Profile: []string{NotificationProfile},
		},
		Type:      fhir.BundleTypeHistory,
		Timestamp: ptr(now.Format(time.RFC3339)),
		Entry: []fhir.BundleEntry{
			{
				FullUrl:  ptr("urn:uuid:" + *params.Id),
				Resource: paramsJSON,
				Request: &fhir.BundleEntryRequest{
					Method: fhir.HTTPVerbGET,
					Url:    b.baseURL.JoinPath("Subscription", sub.ID, "$status").String(),
				},
				Response: &fhir.BundleEntryResponse{
					Status: "200",
				},
			},
		},
	}

	if event.Type == EventNotification && sub.PayloadType == subscription.FullResource && len(event.Resource) > 0 {
		bundle.Entry = append(bundle.Entry, fhir.BundleEntry{
			FullUrl:  ptr(b.focusURL(event.ClaimResponseID)),
			Resource: event.Resource,
			Request: &fhir.BundleEntryRequest{
				Method: fhir.HTTPVerbPUT,
				Url:    claimResponseType + "/" + event.ClaimResponseID,
			},
			Response: &fhir.BundleEntryResponse{
				Status: "200",
			},
		})
	}
	return Envelope(bundle)
}

func (b *Builder) focusURL(id string) string {
	return b.baseURL.JoinPath(claimResponseType, id).String()
}

func ptr[T any](v T) *T {
	return &v
}
