package quotations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

// memoryRepo implements RepositoryPort and TxRepository over maps. WithTx
// snapshots state before running fn and restores it on error, matching the
// rollback semantics of the real transaction wrapper.
type memoryRepo struct {
	quotations map[string]*Quotation
	payments   map[string][]Payment
	stock      map[string]int
	movements  []stockMovement

	failInsertPayment bool
}

type stockMovement struct {
	variantID  string
	delta      int
	refID      string
	operatorID string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		quotations: make(map[string]*Quotation),
		payments:   make(map[string][]Payment),
		stock:      make(map[string]int),
	}
}

func (m *memoryRepo) snapshot() *memoryRepo {
	cp := newMemoryRepo()
	for id, q := range m.quotations {
		qc := *q
		qc.Lines = append([]Line(nil), q.Lines...)
		cp.quotations[id] = &qc
	}
	for id, ps := range m.payments {
		cp.payments[id] = append([]Payment(nil), ps...)
	}
	for v, n := range m.stock {
		cp.stock[v] = n
	}
	cp.movements = append([]stockMovement(nil), m.movements...)
	return cp
}

func (m *memoryRepo) restore(from *memoryRepo) {
	m.quotations = from.quotations
	m.payments = from.payments
	m.stock = from.stock
	m.movements = from.movements
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (*Quotation, error) {
	q, ok := m.quotations[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	qc := *q
	qc.Lines = append([]Line(nil), q.Lines...)
	return &qc, nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, id string) (*Quotation, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) List(_ context.Context, req ListRequest) ([]Quotation, int, error) {
	var out []Quotation
	for _, q := range m.quotations {
		if req.Paid != nil && q.Paid != *req.Paid {
			continue
		}
		if req.Delivered != nil && q.Delivered != *req.Delivered {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListPayments(_ context.Context, quotationID string) ([]Payment, error) {
	return append([]Payment(nil), m.payments[quotationID]...), nil
}

func (m *memoryRepo) Insert(_ context.Context, q Quotation) error {
	qc := q
	qc.Lines = append([]Line(nil), q.Lines...)
	m.quotations[q.ID] = &qc
	return nil
}

func (m *memoryRepo) UpdateBalance(_ context.Context, id string, balance float64, paid bool) error {
	q, ok := m.quotations[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.Balance = balance
	q.Paid = paid
	return nil
}

func (m *memoryRepo) UpdateLineDelivered(_ context.Context, quotationID, variantID string, delivered int) error {
	q, ok := m.quotations[quotationID]
	if !ok {
		return shared.ErrNotFound
	}
	line := q.Line(variantID)
	if line == nil {
		return shared.ErrNotFound
	}
	line.DeliveredQty = delivered
	return nil
}

func (m *memoryRepo) SetDelivered(_ context.Context, id string) error {
	q, ok := m.quotations[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.Delivered = true
	return nil
}

func (m *memoryRepo) InsertPayment(_ context.Context, p Payment) error {
	if m.failInsertPayment {
		return errors.New("injected payment failure")
	}
	m.payments[p.QuotationID] = append(m.payments[p.QuotationID], p)
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.quotations[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.quotations, id)
	delete(m.payments, id)
	return nil
}

func (m *memoryRepo) GetStockForUpdate(_ context.Context, variantID string) (int, error) {
	n, ok := m.stock[variantID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return n, nil
}

func (m *memoryRepo) ApplyStockDelta(_ context.Context, variantID string, delta int, refID, operatorID string) error {
	m.stock[variantID] += delta
	m.movements = append(m.movements, stockMovement{variantID: variantID, delta: delta, refID: refID, operatorID: operatorID})
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

const testOperator = "op-7"

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil, &memoryIdempotency{}, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func seedQuotation(t *testing.T, repo *memoryRepo, svc *Service) *Quotation {
	t.Helper()
	q, err := svc.Create(context.Background(), CreateQuotationRequest{
		CustomerName: "Carla Reyes",
		Phone:        "555-0134",
		PaymentType:  PaymentTypeHalfUpfront,
		Lines: []CreateQuotationLineReq{
			{VariantID: "led-strip-ww", Name: "LED Strip Warm White", UnitPrice: 120, Quantity: 10},
			{VariantID: "led-panel-60", Name: "LED Panel 60x60", UnitPrice: 350, Quantity: 4},
		},
	}, testOperator)
	require.NoError(t, err)
	repo.stock["led-strip-ww"] = 10
	repo.stock["led-panel-60"] = 4
	return q
}

func TestCreateComputesTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	q := seedQuotation(t, repo, svc)

	require.Equal(t, 2600.0, q.Total)
	require.Equal(t, 2600.0, q.Balance)
	require.False(t, q.Paid)
	require.False(t, q.Delivered)
	require.Equal(t, StatusOpen, q.Status())
	require.Len(t, q.Lines, 2)
	require.Equal(t, 1, q.Lines[0].LineOrder)
}

func TestCreateRequiresOperator(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Create(context.Background(), CreateQuotationRequest{}, "")
	require.ErrorIs(t, err, shared.ErrOperatorRequired)
}

func TestFullSettlementThenClose(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	q, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{
			{VariantID: "led-strip-ww", Delivered: 10},
			{VariantID: "led-panel-60", Delivered: 4},
		},
	}, testOperator)
	require.NoError(t, err)
	require.True(t, q.FullyDelivered())
	require.Equal(t, 0, repo.stock["led-strip-ww"])
	require.Equal(t, 0, repo.stock["led-panel-60"])

	q, err = svc.FinalizePayment(context.Background(), q.ID, 2600, "cash", testOperator)
	require.NoError(t, err)
	require.Equal(t, 0.0, q.Balance)
	require.True(t, q.Paid)
	require.Equal(t, StatusReadyToClose, q.Status())

	q, err = svc.MarkDelivered(context.Background(), q.ID, testOperator)
	require.NoError(t, err)
	require.True(t, q.Delivered)
	require.Equal(t, StatusClosed, q.Status())
}

func TestPartialPaymentKeepsQuotationOpen(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	q, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Payment: &PaymentInput{Amount: 400, Method: "transfer"},
	}, testOperator)
	require.NoError(t, err)
	require.Equal(t, 2200.0, q.Balance)
	require.False(t, q.Paid)
	require.Equal(t, StatusOpen, q.Status())

	payments, err := svc.ListPayments(context.Background(), q.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, 400.0, payments[0].Amount)
	require.Equal(t, testOperator, payments[0].OperatorID)
}

func TestOverpaymentClampsBalanceToZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	q, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Payment: &PaymentInput{Amount: 3000, Method: "cash"},
	}, testOperator)
	require.NoError(t, err)
	require.Equal(t, 0.0, q.Balance)
	require.True(t, q.Paid)
}

func TestNearZeroResidualNormalizesToPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	q, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Payment: &PaymentInput{Amount: 2599.999, Method: "cash"},
	}, testOperator)
	require.NoError(t, err)
	require.Equal(t, 0.0, q.Balance)
	require.True(t, q.Paid)
}

func TestFinalizePaymentRejectsWrongAmount(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	_, err := svc.FinalizePayment(context.Background(), q.ID, 2500, "cash", testOperator)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, 2600.0, got.Balance)
	payments, err := svc.ListPayments(context.Background(), q.ID)
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestFinalizePaymentToleratesCentDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	q, err := svc.FinalizePayment(context.Background(), q.ID, 2600.004, "cash", testOperator)
	require.NoError(t, err)
	require.Equal(t, 0.0, q.Balance)
	require.True(t, q.Paid)
}

func TestDeliveryRejectsQuantityAboveOrdered(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "led-panel-60", Delivered: 5}},
	}, testOperator)

	var invalid *shared.InvalidQuantityError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "led-panel-60", invalid.VariantID)
	require.Equal(t, 5, invalid.Requested)
	require.Equal(t, 4, invalid.Ordered)
}

func TestDeliveryRejectsInsufficientStockWithShortfall(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)
	repo.stock["led-strip-ww"] = 8

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "led-strip-ww", Delivered: 10}},
		Payment: &PaymentInput{Amount: 500, Method: "cash"},
	}, testOperator)

	var insufficient *shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "led-strip-ww", insufficient.VariantID)
	require.Equal(t, 2, insufficient.Shortfall())

	// Nothing moved: no line change, no stock change, no payment.
	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Lines[0].DeliveredQty)
	require.Equal(t, 2600.0, got.Balance)
	require.Equal(t, 8, repo.stock["led-strip-ww"])
	payments, err := svc.ListPayments(context.Background(), q.ID)
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestDeliveryAtomicityAcrossLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)
	repo.stock["led-panel-60"] = 1

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{
			{VariantID: "led-strip-ww", Delivered: 5},
			{VariantID: "led-panel-60", Delivered: 3},
		},
	}, testOperator)

	var insufficient *shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// The valid first line must not have been applied either.
	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Lines[0].DeliveredQty)
	require.Equal(t, 10, repo.stock["led-strip-ww"])
	require.Empty(t, repo.movements)
}

func TestDeliveryDecreaseReturnsStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "led-strip-ww", Delivered: 6}},
	}, testOperator)
	require.NoError(t, err)
	require.Equal(t, 4, repo.stock["led-strip-ww"])

	// Correcting the delivered count downward moves stock back in.
	got, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "led-strip-ww", Delivered: 2}},
	}, testOperator)
	require.NoError(t, err)
	require.Equal(t, 2, got.Lines[0].DeliveredQty)
	require.Equal(t, 8, repo.stock["led-strip-ww"])
}

func TestDeliveryUnchangedQuantityMovesNoStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "led-strip-ww", Delivered: 0}},
		Payment: &PaymentInput{Amount: 100, Method: "cash"},
	}, testOperator)
	require.NoError(t, err)
	require.Equal(t, 10, repo.stock["led-strip-ww"])
	require.Empty(t, repo.movements)
}

func TestDeliveryRejectsRepeatedVariant(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{
			{VariantID: "led-strip-ww", Delivered: 1},
			{VariantID: "led-strip-ww", Delivered: 3},
		},
	}, testOperator)

	var invalid *shared.InvalidQuantityError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "led-strip-ww", invalid.VariantID)

	// The whole payload is rejected: line and ledger still agree at zero moved.
	got, getErr := svc.Get(context.Background(), q.ID)
	require.NoError(t, getErr)
	require.Equal(t, 0, got.Lines[0].DeliveredQty)
	require.Equal(t, 10, repo.stock["led-strip-ww"])
	require.Empty(t, repo.movements)
}

func TestDeliveryLineAndLedgerAgree(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	got, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "led-strip-ww", Delivered: 3}},
	}, testOperator)
	require.NoError(t, err)

	// Stock consumed must equal the delivered quantity stored on the line.
	moved := 0
	for _, mv := range repo.movements {
		if mv.variantID == "led-strip-ww" {
			moved -= mv.delta
		}
	}
	require.Equal(t, got.Lines[0].DeliveredQty, moved)
	require.Equal(t, 10-moved, repo.stock["led-strip-ww"])
}

func TestDeliveryUnknownVariantNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "no-such-variant", Delivered: 1}},
	}, testOperator)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeliveryPaymentRollbackRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)
	repo.failInsertPayment = true

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "led-strip-ww", Delivered: 4}},
		Payment: &PaymentInput{Amount: 480, Method: "cash"},
	}, testOperator)
	require.Error(t, err)

	got, getErr := svc.Get(context.Background(), q.ID)
	require.NoError(t, getErr)
	require.Equal(t, 0, got.Lines[0].DeliveredQty)
	require.Equal(t, 2600.0, got.Balance)
	require.Equal(t, 10, repo.stock["led-strip-ww"])
}

func TestDeliveryIdempotencyKeyBlocksReplay(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	req := UpdateDeliveriesRequest{
		Updates:        []DeliveryUpdate{{VariantID: "led-panel-60", Delivered: 2}},
		IdempotencyKey: "abc-123",
	}
	_, err := svc.UpdateDeliveries(context.Background(), q.ID, req, testOperator)
	require.NoError(t, err)

	_, err = svc.UpdateDeliveries(context.Background(), q.ID, req, testOperator)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, 2, repo.stock["led-panel-60"])
}

func TestDeliveryIdempotencyKeyReleasedOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)
	repo.stock["led-panel-60"] = 1

	req := UpdateDeliveriesRequest{
		Updates:        []DeliveryUpdate{{VariantID: "led-panel-60", Delivered: 2}},
		IdempotencyKey: "retry-me",
	}
	_, err := svc.UpdateDeliveries(context.Background(), q.ID, req, testOperator)
	var insufficient *shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// After restocking, the same key must be usable again.
	repo.stock["led-panel-60"] = 4
	_, err = svc.UpdateDeliveries(context.Background(), q.ID, req, testOperator)
	require.NoError(t, err)
}

func TestUpdateDeliveriesOnClosedQuotation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)
	repo.quotations[q.ID].Delivered = true

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Payment: &PaymentInput{Amount: 100, Method: "cash"},
	}, testOperator)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

func TestMarkDeliveredPreconditions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	// Unpaid and undelivered.
	_, err := svc.MarkDelivered(context.Background(), q.ID, testOperator)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	// Paid but not fully delivered.
	_, err = svc.FinalizePayment(context.Background(), q.ID, 2600, "cash", testOperator)
	require.NoError(t, err)
	_, err = svc.MarkDelivered(context.Background(), q.ID, testOperator)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{
			{VariantID: "led-strip-ww", Delivered: 10},
			{VariantID: "led-panel-60", Delivered: 4},
		},
		Payment: &PaymentInput{Amount: 2600, Method: "cash"},
	}, testOperator)
	require.NoError(t, err)

	first, err := svc.MarkDelivered(context.Background(), q.ID, testOperator)
	require.NoError(t, err)
	require.True(t, first.Delivered)

	second, err := svc.MarkDelivered(context.Background(), q.ID, testOperator)
	require.NoError(t, err)
	require.True(t, second.Delivered)
}

func TestDeleteDoesNotRestoreStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	q := seedQuotation(t, repo, svc)

	_, err := svc.UpdateDeliveries(context.Background(), q.ID, UpdateDeliveriesRequest{
		Updates: []DeliveryUpdate{{VariantID: "led-strip-ww", Delivered: 6}},
	}, testOperator)
	require.NoError(t, err)
	require.Equal(t, 4, repo.stock["led-strip-ww"])

	require.NoError(t, svc.Delete(context.Background(), q.ID, testOperator))

	_, err = svc.Get(context.Background(), q.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	// Delivered goods stay gone from the warehouse.
	require.Equal(t, 4, repo.stock["led-strip-ww"])
}

func TestDeleteUnknownQuotation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	err := svc.Delete(context.Background(), "missing", testOperator)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
