package errors

import (
	"errors"
	"net/http"
)

// Transition and verification failures. All are local, synchronous and
// caller-recoverable; none is a fatal process error.
var (
	ErrOwnershipMismatch   = errors.New("order does not belong to this canteen")
	ErrVersionConflict     = errors.New("order was modified by another writer")
	ErrPaymentNotCompleted = errors.New("payment not completed for this order")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTerminalOrder       = errors.New("order is already completed")
	ErrNotFound            = errors.New("order not found")
	ErrNotReady            = errors.New("order is not ready for pickup")
	ErrAlreadyCompleted    = errors.New("order has already been picked up")

	// ErrPaymentSettled guards the one-shot payment webhook: the payment
	// collaborator writes paymentStatus exactly once.
	ErrPaymentSettled = errors.New("payment status is already settled")
)

var errorCodes = map[error]string{
	ErrOwnershipMismatch:   "OWNERSHIP_MISMATCH",
	ErrVersionConflict:     "VERSION_CONFLICT",
	ErrPaymentNotCompleted: "PAYMENT_NOT_COMPLETED",
	ErrInvalidTransition:   "INVALID_TRANSITION",
	ErrTerminalOrder:       "TERMINAL_ORDER",
	ErrNotFound:            "NOT_FOUND",
	ErrNotReady:            "NOT_READY",
	ErrAlreadyCompleted:    "ALREADY_COMPLETED",
	ErrPaymentSettled:      "PAYMENT_SETTLED",
}

var errorStatuses = map[error]int{
	ErrOwnershipMismatch:   http.StatusForbidden,
	ErrVersionConflict:     http.StatusConflict,
	ErrPaymentNotCompleted: http.StatusPaymentRequired,
	ErrInvalidTransition:   http.StatusUnprocessableEntity,
	ErrTerminalOrder:       http.StatusConflict,
	ErrNotFound:            http.StatusNotFound,
	ErrNotReady:            http.StatusUnprocessableEntity,
	ErrAlreadyCompleted:    http.StatusConflict,
	ErrPaymentSettled:      http.StatusConflict,
}

// Code returns the machine-readable code for a taxonomy error, or
// "INTERNAL" for anything else.
func Code(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "INTERNAL"
}

// HTTPStatus maps a taxonomy error to the response status the API surface
// should use. Unknown errors map to 500.
func HTTPStatus(err error) int {
	for sentinel, status := range errorStatuses {
		if errors.Is(err, sentinel) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// Is wraps the standard library so callers that alias this package do not
// also need to import the stdlib errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
