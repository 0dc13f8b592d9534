package quotations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lumenluz/lumenluz-backoffice/internal/platform/httpx"
	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

// Handler exposes the reconciliation engine over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the quotations HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes attaches quotation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/payments", h.ListPayments)
	r.Post("/{id}/finalize-payment", h.FinalizePayment)
	r.Post("/{id}/deliveries", h.UpdateDeliveries)
	r.Post("/{id}/mark-delivered", h.MarkDelivered)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req := ListRequest{
		Search:  r.URL.Query().Get("q"),
		Paid:    parseBool(r.URL.Query().Get("paid")),
		From:    parseDate(r.URL.Query().Get("from")),
		To:      parseDate(r.URL.Query().Get("to")),
		Page:    parseInt(r.URL.Query().Get("page"), 1),
		PerPage: parseInt(r.URL.Query().Get("per_page"), 20),
	}
	if req.Delivered = parseBool(r.URL.Query().Get("delivered")); req.Delivered == nil {
		// The pending-payments screen defaults to open records.
		if r.URL.Query().Get("all") == "" {
			open := false
			req.Delivered = &open
		}
	}

	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list quotations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	// List rows carry the same derived status as Show responses so the
	// dashboard never recomputes lifecycle state client-side.
	rows := make([]quotationResponse, len(items))
	for i := range items {
		rows[i] = presentQuotation(&items[i])
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      rows,
		"pagination": shared.NewPagination(req.Page, req.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentQuotation(q))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	q, err := h.service.Create(r.Context(), req, shared.OperatorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create quotation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, presentQuotation(q))
}

func (h *Handler) FinalizePayment(w http.ResponseWriter, r *http.Request) {
	var req FinalizePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	q, err := h.service.FinalizePayment(r.Context(), id, req.Amount, req.Method, shared.OperatorFromContext(r.Context()))
	if err != nil {
		h.logWarn(r, "finalize payment", id, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentQuotation(q))
}

func (h *Handler) UpdateDeliveries(w http.ResponseWriter, r *http.Request) {
	var req UpdateDeliveriesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	id := chi.URLParam(r, "id")
	q, err := h.service.UpdateDeliveries(r.Context(), id, req, shared.OperatorFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
			return
		}
		h.logWarn(r, "update deliveries", id, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentQuotation(q))
}

func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, err := h.service.MarkDelivered(r.Context(), id, shared.OperatorFromContext(r.Context()))
	if err != nil {
		h.logWarn(r, "mark delivered", id, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentQuotation(q))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id, shared.OperatorFromContext(r.Context())); err != nil {
		h.logWarn(r, "delete quotation", id, err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments})
}

func (h *Handler) logWarn(r *http.Request, op, id string, err error) {
	h.logger.Warn(op+" rejected",
		slog.String("quotation_id", id),
		slog.String("operator", shared.OperatorFromContext(r.Context())),
		slog.Any("error", err))
}

// quotationResponse augments the stored record with its derived status so the
// dashboard never recomputes lifecycle state client-side.
type quotationResponse struct {
	*Quotation
	Status Status `json:"status"`
}

func presentQuotation(q *Quotation) quotationResponse {
	return quotationResponse{Quotation: q, Status: q.Status()}
}

func parseBool(s string) *bool {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
