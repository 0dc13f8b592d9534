package httpx

import (
	"errors"
	"net/http"

	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

// RespondError maps reconciliation errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var invalidQty *shared.InvalidQuantityError
	var insufficient *shared.InsufficientStockError

	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidAmount):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Amount", err.Error())
	case errors.Is(err, shared.ErrPreconditionFailed):
		Problem(w, http.StatusConflict, "Precondition Failed", err.Error())
	case errors.Is(err, shared.ErrOperatorRequired):
		Problem(w, http.StatusBadRequest, "Operator Required", err.Error())
	case errors.As(err, &invalidQty):
		ProblemWith(w, ProblemDetail{
			Title:     "Invalid Quantity",
			Status:    http.StatusUnprocessableEntity,
			Detail:    invalidQty.Error(),
			VariantID: invalidQty.VariantID,
		})
	case errors.As(err, &insufficient):
		ProblemWith(w, ProblemDetail{
			Title:     "Insufficient Stock",
			Status:    http.StatusConflict,
			Detail:    insufficient.Error(),
			VariantID: insufficient.VariantID,
			Shortfall: insufficient.Shortfall(),
		})
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
