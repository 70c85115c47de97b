package apierror

import (
	"errors"
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

	// Settlement taxonomy. All of these are caller-correctable: no retry is
	// needed, the request itself was wrong or premature.
	ErrInvalidCharge     ErrorCode = "INVALID_CHARGE"
	ErrNoPendingEarnings ErrorCode = "NO_PENDING_EARNINGS"
	ErrAmountMismatch    ErrorCode = "AMOUNT_MISMATCH"
	ErrNonPositiveAmount ErrorCode = "NON_POSITIVE_AMOUNT"
	ErrPayeeNotOnboarded ErrorCode = "PAYEE_NOT_ONBOARDED"

	// ErrAlreadySettled marks a paid entry being transitioned again. With a
	// matching transfer reference it is benign idempotent repetition; with a
	// different reference it is a conflict needing manual review.
	ErrAlreadySettled ErrorCode = "ALREADY_SETTLED"
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
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// HasCode reports whether err is an APIError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrAlreadySettled:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest, ErrInvalidCharge, ErrAmountMismatch, ErrNonPositiveAmount:
			return http.StatusBadRequest
		case ErrNoPendingEarnings, ErrPayeeNotOnboarded:
			return http.StatusUnprocessableEntity
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
