package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the booking engine. Services wrap these with context;
// handlers map them to HTTP statuses with HTTPStatus.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrDeadlineExceeded   = errors.New("payment deadline exceeded")
	ErrAmountMismatch     = errors.New("payment amount mismatch")
	ErrDuplicateOperation = errors.New("duplicate operation")
	ErrProvider           = errors.New("payment provider error")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrNotFound           = errors.New("not found")
)

// Wrap attaches a formatted message while keeping the sentinel matchable
// with errors.Is.
func Wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{sentinel}, args...)...)
}

// HTTPStatus maps an engine error to the status the HTTP layer returns.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrDuplicateOperation):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDeadlineExceeded):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
