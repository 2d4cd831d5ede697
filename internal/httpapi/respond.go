package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/karsell/intake/internal/shared"
)

// errorBody is the wire shape of every failure response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses and the error
// envelope. Unknown errors never leak their text to the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Code: "internal", Message: "internal error"}

	var fieldErr *shared.FieldError
	switch {
	case errors.As(err, &fieldErr):
		status = http.StatusUnprocessableEntity
		body = errorBody{Code: "validation_failed", Message: fieldErr.Reason, Field: fieldErr.Field, Hint: fieldErr.Hint}
	case errors.Is(err, shared.ErrorValidation):
		status = http.StatusUnprocessableEntity
		body = errorBody{Code: "validation_failed", Message: err.Error()}
	case errors.Is(err, shared.ErrorDuplicateListing):
		status = http.StatusConflict
		body = errorBody{Code: "duplicate_listing", Message: "a listing for this vehicle already exists"}
	case errors.Is(err, shared.ErrorNoValuation):
		status = http.StatusConflict
		body = errorBody{Code: "no_valuation", Message: "no valuation available for this session", Hint: "return to valuation step"}
	case errors.Is(err, shared.ErrorSessionNotFound), errors.Is(err, shared.ErrorNotFound):
		status = http.StatusNotFound
		body = errorBody{Code: "not_found", Message: "not found"}
	case errors.Is(err, shared.ErrorNoSellerID),
		errors.Is(err, shared.ErrorUnauthorized),
		errors.Is(err, shared.ErrorInvalidToken),
		errors.Is(err, shared.ErrorTokenExpired),
		errors.Is(err, shared.ErrorInvalidBearer):
		status = http.StatusUnauthorized
		body = errorBody{Code: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, shared.ErrorSubmissionTimeout):
		status = http.StatusGatewayTimeout
		body = errorBody{Code: "timeout", Message: "submission timed out, please retry"}
	}

	writeJSON(w, status, errorResponse{Success: false, Error: body})
}
