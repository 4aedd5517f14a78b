package shared

import "errors"

// Domain error taxonomy. Every mutation error leaves the data store
// unchanged; callers map these to 4xx responses via platform/httpx.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation (duplicate lot code,
	// invoice number collision).
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock indicates a sale line exceeds branch stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverAllocation indicates a distribution exceeds the lot remainder.
	ErrOverAllocation = errors.New("distribution exceeds available lot quantity")
	// ErrPaymentMismatch indicates payments do not sum to the invoice total.
	ErrPaymentMismatch = errors.New("payments do not match invoice total")
	// ErrInvalidPaymentMethod indicates an unknown or inactive payment method.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrAlreadyVoided indicates the invoice was voided before.
	ErrAlreadyVoided = errors.New("invoice already voided")
)
