package notification

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// Envelope is a notification Bundle as sent to a subscriber
type Envelope fhir.Bundle

// Bytes returns the JSON encoding of the envelope
func (e Envelope) Bytes() ([]byte, error) {
	data, err := json.Marshal(fhir.Bundle(e))
	if err != nil {
		return nil, fmt.Errorf("marshaling notification bundle: %w", err)
	}
	return data, nil
}

// Parse decodes a notification Bundle received from the wire
func Parse(data []byte) (Envelope, error) {
	var bundle fhir.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return Envelope{}, fmt.Errorf("unmarshaling notification bundle: %w", err)
	}
	if len(bundle.Entry) == 0 {
		return Envelope{}, errors.New("notification bundle has no status entry")
	}
	return Envelope(bundle), nil
}

// Status returns the subscription-status Parameters of the first entry
func (e Envelope) Status() (fhir.Parameters, error) {
	if len(e.Entry) == 0 {
		return fhir.Parameters{}, errors.New("notification bundle has no status entry")
	}
	var params fhir.Parameters
	if err := json.Unmarshal(e.Entry[0].Resource, &params); err != nil {
		return fhir.Parameters{}, fmt.Errorf("unmarshaling status parameters: %w", err)
	}
	return params, nil
}

// NotificationType returns the notification type code from the status entry
func (e Envelope) NotificationType() (string, error) {
	params, err := e.Status()
	if err != nil {
		return "", err
	}
	for _, p := range params.Parameter {
		if p.Name == "type" && p.ValueCode != nil {
			return *p.ValueCode, nil
		}
	}
	return "", errors.New("status parameters have no type")
}

// Focus returns the reference to the changed resource
func (e Envelope) Focus() (*fhir.Reference, error) {
	params, err := e.Status()
	if err != nil {
		return nil, err
	}
	for _, p := range params.Parameter {
		if p.Name != "notification-event" {
			continue
		}
		for _, part := range p.Part {
			if part.Name == "focus" {
				return part.ValueReference, nil
			}
		}
	}
	return nil, errors.New("status parameters have no focus")
}

// Resource returns the full resource entry, or nil when the envelope carries none
func (e Envelope) Resource() json.RawMessage {
	if len(e.Entry) < 2 {
		return nil
	}
	return e.Entry[1].Resource
}
