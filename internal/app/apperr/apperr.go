package apperr

import (
	"errors"
	"net/http"

	"divineconnect/internal/domain/allocation"
	"divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/pricing"
	"divineconnect/internal/domain/provider"
	"divineconnect/internal/domain/reviews"
	"divineconnect/internal/domain/slotlock"
)

const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnavailableMode   = "UNAVAILABLE_MODE"
	CodeInvalidCoupon     = "INVALID_COUPON"
	CodeConflict          = "SLOT_CONFLICT"
	CodeManualUnavailable = "MANUAL_UNAVAILABLE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodePersistence       = "PERSISTENCE_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is the classified failure returned by application handlers.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Persistence(err error) *Error {
	return New(CodePersistence, "booking could not be saved, please retry", err)
}

func Conflict(err error) *Error {
	return New(CodeConflict, slotlock.ErrConflict.Error(), err)
}

// From classifies err; errors that are already classified pass through.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make(map[string]any, len(verr.Fields))
		for _, f := range verr.Fields {
			details[f.Field] = f.Message
		}
		return &Error{Code: CodeValidation, Message: "request is invalid", Details: details, Err: err}
	case errors.Is(err, booking.ErrValidation),
		errors.Is(err, booking.ErrPaymentMismatch),
		errors.Is(err, booking.ErrPaymentRefRequired),
		errors.Is(err, pricing.ErrInvalidLodging),
		errors.Is(err, reviews.ErrInvalidRating),
		errors.Is(err, reviews.ErrTextTooLong),
		errors.Is(err, provider.ErrInvalidRating):
		return New(CodeValidation, err.Error(), err)
	case errors.Is(err, pricing.ErrUnavailableMode):
		return New(CodeUnavailableMode, "service is not offered in this mode", err)
	case errors.Is(err, pricing.ErrInvalidCoupon):
		return New(CodeInvalidCoupon, "coupon is not valid", err)
	case errors.Is(err, slotlock.ErrConflict), errors.Is(err, slotlock.ErrLockTimeout):
		return Conflict(err)
	case errors.Is(err, allocation.ErrManualUnavailable):
		return New(CodeManualUnavailable, "selected provider is not available for this slot", err)
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrAlreadyReviewed),
		errors.Is(err, booking.ErrAlreadyAssigned),
		errors.Is(err, booking.ErrProviderUnassigned):
		return New(CodeInvalidTransition, err.Error(), err)
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, catalog.ErrServiceNotFound),
		errors.Is(err, provider.ErrNotFound),
		errors.Is(err, reviews.ErrNotFound):
		return New(CodeNotFound, err.Error(), err)
	case errors.Is(err, ErrForbidden):
		return New(CodeForbidden, "not allowed", err)
	case errors.Is(err, ErrUnauthorized):
		return New(CodeUnauthorized, "authentication required", err)
	case errors.Is(err, booking.ErrConcurrentUpdate), errors.Is(err, booking.ErrInconsistentState):
		return Persistence(err)
	}
	return New(CodeInternal, "internal error", err)
}

// HTTPStatus maps a code to the status transports should answer with.
func HTTPStatus(code string) int {
	switch code {
	case CodeValidation, CodeUnavailableMode, CodeInvalidCoupon:
		return http.StatusUnprocessableEntity
	case CodeConflict, CodeManualUnavailable, CodeInvalidTransition:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err classifies as code.
func Is(err error, code string) bool {
	e := From(err)
	return e != nil && e.Code == code
}
