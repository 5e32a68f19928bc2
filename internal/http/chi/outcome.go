package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/marcelsud/priorauth-notify/decision"
	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/rs/zerolog/log"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// writeError maps a domain error to its HTTP status and writes it as an OperationOutcome
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *subscription.ValidationError
		conflict   *subscription.ConflictError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		writeOperationOutcome(w, http.StatusRequestEntityTooLarge, fhir.IssueTypeTooLong,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.As(err, &validation), errors.Is(err, decision.ErrInvalid):
		writeOperationOutcome(w, http.StatusBadRequest, fhir.IssueTypeInvalid, err.Error())
	case errors.As(err, &conflict):
		writeOperationOutcome(w, http.StatusConflict, fhir.IssueTypeConflict, err.Error())
	case errors.Is(err, subscription.ErrNotFound), errors.Is(err, decision.ErrNotFound):
		writeOperationOutcome(w, http.StatusNotFound, fhir.IssueTypeNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		writeOperationOutcome(w, http.StatusInternalServerError, fhir.IssueTypeException, "internal server error")
	}
}

func writeOperationOutcome(w http.ResponseWriter, status int, code fhir.IssueType, diagnostics string) {
	outcome := fhir.OperationOutcome{
		Issue: []fhir.OperationOutcomeIssue{
			{
				Severity:    fhir.IssueSeverityError,
				Code:        code,
				Diagnostics: &diagnostics,
			},
		},
	}
	writeResource(w, status, outcome)
}

func writeResource(w http.ResponseWriter, status int, resource any) {
	w.Header().Set("Content-Type", fhirclient.FhirJsonMediaType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resource); err != nil {
		log.Error().Err(err).Msg("Encoding response")
	}
}
