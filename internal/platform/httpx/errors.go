package httpx

import (
	"errors"
	"net/http"

	"github.com/matices-erp/matices-pos/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Every error in the taxonomy is request-scoped; nothing here is fatal
// to the process.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrOverAllocation),
		errors.Is(err, shared.ErrPaymentMismatch),
		errors.Is(err, shared.ErrInvalidPaymentMethod),
		errors.Is(err, shared.ErrAlreadyVoided):
		Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
