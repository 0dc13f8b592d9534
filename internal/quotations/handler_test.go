package quotations

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

func newTestHandler(repo *memoryRepo) http.Handler {
	svc := newTestService(repo)
	h := NewHandler(slog.New(slog.DiscardHandler), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithOperator(req.Context(), testOperator)))
		})
	})
	r.Route("/quotations", h.MountRoutes)
	return r
}

func seedViaHTTP(t *testing.T, router http.Handler) string {
	t.Helper()
	body := `{
		"customer_name": "Carla Reyes",
		"phone": "555-0134",
		"payment_type": "ADVANCE_HALF",
		"lines": [
			{"variant_id": "led-strip-ww", "name": "LED Strip Warm White", "unit_price": 120, "quantity": 10},
			{"variant_id": "led-panel-60", "name": "LED Panel 60x60", "unit_price": 350, "quantity": 4}
		]
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quotations", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestHandlerCreateAndShow(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(repo)
	id := seedViaHTTP(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotations/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Total   float64 `json:"total"`
		Balance float64 `json:"balance"`
		Status  string  `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 2600.0, got.Total)
	require.Equal(t, 2600.0, got.Balance)
	require.Equal(t, "OPEN", got.Status)
}

func TestHandlerCreateValidation(t *testing.T) {
	router := newTestHandler(newMemoryRepo())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quotations", bytes.NewBufferString(`{"customer_name":""}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHandlerFinalizePaymentWrongAmount(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(repo)
	id := seedViaHTTP(t, router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/finalize-payment",
		bytes.NewBufferString(`{"amount": 2500, "method": "cash"}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerDeliveriesInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(repo)
	id := seedViaHTTP(t, router)
	repo.stock["led-strip-ww"] = 8
	repo.stock["led-panel-60"] = 4

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/deliveries",
		bytes.NewBufferString(`{"updates":[{"variant_id":"led-strip-ww","delivered":10}]}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		VariantID string `json:"variant_id"`
		Shortfall int    `json:"shortfall"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "led-strip-ww", problem.VariantID)
	require.Equal(t, 2, problem.Shortfall)
}

func TestHandlerDeliveriesIdempotencyHeader(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(repo)
	id := seedViaHTTP(t, router)
	repo.stock["led-panel-60"] = 4

	body := `{"updates":[{"variant_id":"led-panel-60","delivered":2}]}`

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/deliveries", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "once-only")
	router.ServeHTTP(first, req)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/deliveries", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "once-only")
	router.ServeHTTP(second, req)
	require.Equal(t, http.StatusConflict, second.Code)
}

func TestHandlerMarkDeliveredPrecondition(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(repo)
	id := seedViaHTTP(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quotations/"+id+"/mark-delivered", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerDelete(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(repo)
	id := seedViaHTTP(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/quotations/"+id, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotations/"+id, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListDefaultsToOpen(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(repo)
	seedViaHTTP(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotations/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "OPEN", page.Items[0].Status, "list rows must carry the derived status")
}

func TestHandlerOperatorRequired(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	h := NewHandler(slog.New(slog.DiscardHandler), svc)
	r := chi.NewRouter()
	r.Route("/quotations", h.MountRoutes)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quotations", bytes.NewBufferString(`{
		"customer_name": "Ana", "phone": "1", "payment_type": "ADVANCE_FULL",
		"lines": [{"variant_id": "v", "name": "n", "unit_price": 1, "quantity": 1}]
	}`))
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
