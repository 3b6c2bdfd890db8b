package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	// ErrCryptoFailure marks decrypt/unwrap failures. Terminal for the
	// operation that hit it: retrying a failed decrypt with the same
	// inputs cannot succeed.
	ErrCryptoFailure ErrorCode = "CRYPTO_FAILURE"

	// ErrDependencyFailure marks transient failures of backing services
	// (KMS, chain RPC). Retryable within the worker's budget.
	ErrDependencyFailure ErrorCode = "DEPENDENCY_FAILURE"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// IsRetryable reports whether an error should be retried by the worker's
// retry policy. Crypto failures are never retryable.
func IsRetryable(err error) bool {
	if apiErr, ok := err.(APIError); ok {
		return apiErr.Code == ErrDependencyFailure
	}
	return false
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrBadRequest, ErrInvalidInput:
			return http.StatusBadRequest
		case ErrDependencyFailure:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
