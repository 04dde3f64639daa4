package fleetapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the fleet manager
const (
	CodeAlreadyExists             = "AlreadyExists"
	CodeLimitExceeded             = "LimitExceeded"
	CodeScalingActivityInProgress = "ScalingActivityInProgress"
	CodeResourceContention        = "ResourceContention"
	CodeResourceInUse             = "ResourceInUse"
	CodeNotFound                  = "NotFound"
	CodeValidationError           = "ValidationError"
	CodeThrottling                = "Throttling"
	CodeServiceLinkedRoleFailure  = "ServiceLinkedRoleFailure"
	CodeInvalidNextToken          = "InvalidNextToken"
	CodeInternalFailure           = "InternalFailure"
	CodeServiceUnavailable        = "ServiceUnavailable"
)

// APIError is an error response from the fleet manager
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"Code"`
	Message    string `json:"Message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

// NewAPIError builds an APIError with the status the fleet manager uses for code
func NewAPIError(code, message string) *APIError {
	return &APIError{StatusCode: statusForCode(code), Code: code, Message: message}
}

// ErrorCode returns the fleet-manager error code carried by err, if any
func ErrorCode(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return "", false
}

// codeForStatus fills in a code when the response body carried none
func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeAlreadyExists
	case status == http.StatusTooManyRequests:
		return CodeThrottling
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return CodeValidationError
	case status == http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	case status >= 500:
		return CodeInternalFailure
	default:
		return fmt.Sprintf("HTTP%d", status)
	}
}

func statusForCode(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeScalingActivityInProgress, CodeResourceInUse, CodeResourceContention:
		return http.StatusConflict
	case CodeLimitExceeded, CodeThrottling:
		return http.StatusTooManyRequests
	case CodeValidationError, CodeInvalidNextToken:
		return http.StatusBadRequest
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeServiceLinkedRoleFailure:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
