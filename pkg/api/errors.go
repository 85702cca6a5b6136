package api

import "fmt"

// ErrorType is the "type" discriminator inside the error envelope.
// Client-caused failures (malformed body, unknown model, unknown route,
// provider rejections surfaced before the first byte) all use
// "invalid_request_error", matching the OpenAI envelope.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPI            ErrorType = "api_error"
)

// Error is a structured gateway error carrying the wire envelope fields.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an Error as the top-level JSON error body:
// {"error": {"message": ..., "type": ...}}.
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// NewInvalidRequestError creates an Error for a client-caused failure.
// param names the offending request field and may be empty.
func NewInvalidRequestError(param, message string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewConfigError creates an Error for missing or invalid provider
// configuration detected before any upstream call.
func NewConfigError(message string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidRequest,
		Code:    "configuration_error",
		Message: message,
	}
}

// NewModelNotFoundError creates an Error naming an unresolvable model.
func NewModelNotFoundError(model string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidRequest,
		Code:    "model_not_found",
		Param:   "model",
		Message: fmt.Sprintf("the model %q does not exist or is not configured", model),
	}
}

// NewNotFoundError creates an Error for an unknown route.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidRequest,
		Code:    "not_found",
		Message: message,
	}
}

// NewServerError creates an Error for internal gateway failures.
func NewServerError(message string) *Error {
	return &Error{
		Type:    ErrorTypeAPI,
		Message: message,
	}
}
