package dto

import (
	"net/http"

	"github.com/fulfillment/backend/internal/domain/shared"
)

// Domain error codes surface unchanged
const (
	ErrCodeNotFound            = shared.CodeNotFound
	ErrCodeInvalidInput        = shared.CodeInvalidInput
	ErrCodeInvalidTransition   = shared.CodeInvalidTransition
	ErrCodePreconditionFailed  = shared.CodePreconditionFailed
	ErrCodeConflict            = shared.CodeConflict
	ErrCodeConcurrencyConflict = shared.CodeConcurrencyConflict
	ErrCodePersistence         = shared.CodePersistence
)

// Transport error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeValidation is used when request binding fails validation
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeUnauthorized is used when a bearer token is missing or invalid
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeTokenExpired is used when the bearer token has expired
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeMaxConnections is used when the stream has no free slots
	ErrCodeMaxConnections = "MAX_CONNECTIONS_REACHED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeInvalidTransition:   http.StatusUnprocessableEntity,
	ErrCodePreconditionFailed:  http.StatusPreconditionFailed,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodePersistence:         http.StatusInternalServerError,

	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeMaxConnections:  http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// aliasErrorCodes maps codes raised by lower layers onto the public set
var aliasErrorCodes = map[string]string{
	"ALREADY_EXISTS":   ErrCodeConflict,
	"DUPLICATE":        ErrCodeConflict,
	"INVALID_STATE":    ErrCodeInvalidTransition,
	"VALIDATION_ERROR": ErrCodeValidation,
}

// NormalizeErrorCode converts a code to the public set. Codes the API does
// not publish become INTERNAL_ERROR.
func NormalizeErrorCode(code string) string {
	if alias, ok := aliasErrorCodes[code]; ok {
		return alias
	}
	if _, ok := ErrorCodeHTTPStatus[code]; ok {
		return code
	}
	return ErrCodeInternal
}
