package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// ErrInvalid is wrapped by every Parse error
var ErrInvalid = errors.New("invalid claim response")

// Parse reads a ClaimResponse resource into a Decision. The organization is the
// requestor identifier value; both it and the resource id are required.
func Parse(body []byte) (Decision, error) {
	var header struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(body, &header); err != nil {
		return Decision{}, fmt.Errorf("%w: malformed resource: %v", ErrInvalid, err)
	}
	if header.ResourceType != "ClaimResponse" {
		return Decision{}, fmt.Errorf("%w: expected resourceType ClaimResponse, got %q", ErrInvalid, header.ResourceType)
	}

	var claimResponse fhir.ClaimResponse
	if err := json.Unmarshal(body, &claimResponse); err != nil {
		return Decision{}, fmt.Errorf("%w: malformed ClaimResponse: %v", ErrInvalid, err)
	}
	if claimResponse.Id == nil || *claimResponse.Id == "" {
		return Decision{}, fmt.Errorf("%w: resource id required", ErrInvalid)
	}
	requestor := claimResponse.Requestor
	if requestor == nil || requestor.Identifier == nil ||
		requestor.Identifier.Value == nil || *requestor.Identifier.Value == "" {
		return Decision{}, fmt.Errorf("%w: requestor organization identifier required", ErrInvalid)
	}

	return Decision{
		ID:             *claimResponse.Id,
		OrganizationID: *requestor.Identifier.Value,
		Resource:       body,
		UpdatedAt:      time.Now(),
	}, nil
}
