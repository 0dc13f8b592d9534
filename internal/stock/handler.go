package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lumenluz/lumenluz-backoffice/internal/platform/httpx"
	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

// Handler exposes the stock ledger's admin surface.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes attaches stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{variantID}", h.ShowLevel)
	r.Get("/{variantID}/movements", h.ListMovements)
	r.Post("/adjustments", h.Adjust)
}

func (h *Handler) ShowLevel(w http.ResponseWriter, r *http.Request) {
	level, err := h.service.GetLevel(r.Context(), chi.URLParam(r, "variantID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), chi.URLParam(r, "variantID"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": movements})
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input.OperatorID = shared.OperatorFromContext(r.Context())

	level, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.logger.Warn("stock adjustment rejected",
			slog.String("variant_id", input.VariantID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}
