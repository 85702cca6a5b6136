package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/polygate-dev/polygate/pkg/api"
)

// statusFor maps a gateway error to its HTTP status.
func statusFor(err *api.Error) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		if err.Code == "not_found" {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// asAPIError coerces any error into the wire envelope. Provider and
// transport failures that are not already structured surface as
// invalid_request_error with the vendor's message intact, so they stay
// in the 400 class rather than masquerading as gateway faults.
func asAPIError(err error) *api.Error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewInvalidRequestError("", err.Error())
}

// writeError sends the JSON error envelope with the mapped status.
func writeError(w http.ResponseWriter, err *api.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: err})
}
