// Package httputil maps domain errors onto the JSON error responses the API
// returns. Handlers never pick status codes by hand; the domain code decides.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "pact/pkg/domain-errors"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	State            any    `json:"state,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a domain error as JSON. Internal errors omit the
// description so infrastructure details never leak to clients. When the
// error carries a state snapshot (e.g. current signing progress) it is
// included so the caller can reconcile without re-querying.
func WriteError(w http.ResponseWriter, err error) {
	body := errorBody{Error: string(dErrors.CodeInternal)}
	status := http.StatusInternalServerError

	var derr *dErrors.Error
	if errors.As(err, &derr) {
		body.Error = string(derr.Code)
		if derr.Code != dErrors.CodeInternal {
			body.ErrorDescription = derr.Message
		}
		body.State = derr.State
		status = statusFor(derr.Code)
	}

	WriteJSON(w, status, body)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeUnauthorizedSigner:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidTransition,
		dErrors.CodeNotSignable, dErrors.CodeAlreadySigned, dErrors.CodeExpired:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeNoHealthyEndpoint:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
