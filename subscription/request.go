package subscription

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// FilterCriteriaExtensionURL carries the org-identifier filter on Subscription.criteria
	FilterCriteriaExtensionURL = "http://hl7.org/fhir/uv/subscriptions-backport/StructureDefinition/backport-filter-criteria"
	// PayloadContentExtensionURL carries the payload type on Subscription.channel.payload
	PayloadContentExtensionURL = "http://hl7.org/fhir/uv/subscriptions-backport/StructureDefinition/backport-payload-content"

	orgFilterPrefix = "org-identifier="
)

// Request is a parsed subscription registration request
type Request struct {
	FilterCriteria []string
	Endpoint       string
	AuthHeader     string
	PayloadType    PayloadType
	EndTime        *time.Time
}

// subscriptionResource is the subset of a FHIR R4 Subscription (with Subscriptions
// Backport extensions) the registry reads.
type subscriptionResource struct {
	ResourceType string            `json:"resourceType"`
	Criteria     string            `json:"criteria"`
	CriteriaExt  *primitiveElement `json:"_criteria,omitempty"`
	End          string            `json:"end,omitempty"`
	Channel      struct {
		Type       string            `json:"type"`
		Endpoint   string            `json:"endpoint"`
		Payload    string            `json:"payload,omitempty"`
		PayloadExt *primitiveElement `json:"_payload,omitempty"`
		Header     []string          `json:"header,omitempty"`
	} `json:"channel"`
}

type primitiveElement struct {
	Extension []extension `json:"extension,omitempty"`
}

type extension struct {
	URL         string `json:"url"`
	ValueString string `json:"valueString,omitempty"`
	ValueCode   string `json:"valueCode,omitempty"`
}

// ParseRequest parses a FHIR Subscription resource into a Request.
// It only fails on structurally malformed input; missing fields are
// reported by Registry.Register.
func ParseRequest(raw []byte) (Request, error) {
	var res subscriptionResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return Request{}, validationError("malformed subscription request: %v", err)
	}
	if res.ResourceType != "" && res.ResourceType != "Subscription" {
		return Request{}, validationError("expected resourceType Subscription, got %s", res.ResourceType)
	}

	req := Request{
		Endpoint:    strings.TrimSpace(res.Channel.Endpoint),
		PayloadType: NewPayloadType(extensionValue(res.Channel.PayloadExt, PayloadContentExtensionURL)),
	}
	if res.CriteriaExt != nil {
		for _, ext := range res.CriteriaExt.Extension {
			if ext.URL == FilterCriteriaExtensionURL && ext.ValueString != "" {
				req.FilterCriteria = append(req.FilterCriteria, ext.ValueString)
			}
		}
	}
	if res.Criteria != "" {
		req.FilterCriteria = append(req.FilterCriteria, res.Criteria)
	}
	if len(res.Channel.Header) > 0 {
		req.AuthHeader = authorizationValue(res.Channel.Header[0])
	}
	if res.End != "" {
		end, err := time.Parse(time.RFC3339, res.End)
		if err != nil {
			return Request{}, validationError("invalid end: %v", err)
		}
		req.EndTime = &end
	}
	return req, nil
}

// ParseCriteria extracts the organization id from a filter of the literal
// form org-identifier=<value>. Any other form fails.
func ParseCriteria(criteria string) (string, error) {
	value, found := strings.CutPrefix(criteria, orgFilterPrefix)
	if !found || value == "" {
		return "", validationError("organization filter not found")
	}
	return value, nil
}

// OrganizationID returns the organization of the first parsable filter criterion
func (r Request) OrganizationID() (string, error) {
	for _, criteria := range r.FilterCriteria {
		if org, err := ParseCriteria(criteria); err == nil {
			return org, nil
		}
	}
	return "", validationError("organization filter not found")
}

func extensionValue(elem *primitiveElement, url string) string {
	if elem == nil {
		return ""
	}
	for _, ext := range elem.Extension {
		if ext.URL == url {
			return ext.ValueCode
		}
	}
	return ""
}

// authorizationValue strips a leading "Authorization:" header name; the value
// itself is kept verbatim.
func authorizationValue(header string) string {
	name, value, found := strings.Cut(header, ":")
	if found && strings.EqualFold(strings.TrimSpace(name), "Authorization") {
		return strings.TrimLeft(value, " ")
	}
	return header
}
