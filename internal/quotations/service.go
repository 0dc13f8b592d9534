package quotations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id string) (*Quotation, error)
	List(ctx context.Context, req ListRequest) ([]Quotation, int, error)
	ListPayments(ctx context.Context, quotationID string) ([]Payment, error)
}

// TxRepository exposes the writes available inside one transaction. The stock
// methods hit the same ledger table the stock service reads, which is what makes
// delivery-quantity writes and stock deltas commit together or not at all.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id string) (*Quotation, error)
	Insert(ctx context.Context, q Quotation) error
	UpdateBalance(ctx context.Context, id string, balance float64, paid bool) error
	UpdateLineDelivered(ctx context.Context, quotationID, variantID string, delivered int) error
	SetDelivered(ctx context.Context, id string) error
	InsertPayment(ctx context.Context, p Payment) error
	Delete(ctx context.Context, id string) error
	GetStockForUpdate(ctx context.Context, variantID string) (int, error)
	ApplyStockDelta(ctx context.Context, variantID string, delta int, refID, operatorID string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards compound operations against double submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort records engine outcomes.
type MetricsPort interface {
	PaymentRecorded()
	DeliveryApplied()
	EngineFailure(reason string)
}

// Service is the reconciliation engine. It holds no state between calls; every
// operation re-reads authoritative store state under a row lock, computes the
// new state and submits it as one transaction.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	cache       *Cache
	metrics     MetricsPort
	now         func() time.Time
}

// NewService builds the engine. audit, idempotency, cache and metrics may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cache *Cache, metrics MetricsPort) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		cache:       cache,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Create ingests a quotation from the storefront checkout flow: balance equals
// the computed total, nothing delivered, both completion flags false.
func (s *Service) Create(ctx context.Context, req CreateQuotationRequest, operatorID string) (*Quotation, error) {
	if operatorID == "" {
		return nil, shared.ErrOperatorRequired
	}
	if len(req.Lines) == 0 {
		return nil, errors.New("quotations: at least one line required")
	}

	var total float64
	lines := make([]Line, 0, len(req.Lines))
	for i, lineReq := range req.Lines {
		if lineReq.Quantity <= 0 {
			return nil, fmt.Errorf("quotations: quantity must be positive for variant %s", lineReq.VariantID)
		}
		if lineReq.UnitPrice <= 0 {
			return nil, fmt.Errorf("quotations: unit price must be positive for variant %s", lineReq.VariantID)
		}
		total += float64(lineReq.Quantity) * lineReq.UnitPrice
		lines = append(lines, Line{
			VariantID: lineReq.VariantID,
			Name:      lineReq.Name,
			Color:     lineReq.Color,
			UnitPrice: lineReq.UnitPrice,
			Quantity:  lineReq.Quantity,
			ImageURL:  lineReq.ImageURL,
			LineOrder: i + 1,
		})
	}
	total = shared.NormalizeAmount(total)

	q := Quotation{
		ID:           uuid.NewString(),
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		PaymentType:  req.PaymentType,
		Total:        total,
		Balance:      total,
		CreatedAt:    s.now().UTC(),
		Lines:        lines,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("create quotation: %w", err)
	}

	s.recordAudit(ctx, operatorID, "quotations:create", q.ID, map[string]any{
		"total": shared.FormatAmount(q.Total),
		"lines": len(q.Lines),
	})
	s.bumpCache(ctx)
	return s.repo.Get(ctx, q.ID)
}

// FinalizePayment settles the entire outstanding balance in one payment. The
// amount must match the balance exactly; this is the pay-everything-now path,
// not a partial payment.
func (s *Service) FinalizePayment(ctx context.Context, id string, amount float64, method, operatorID string) (*Quotation, error) {
	if operatorID == "" {
		return nil, shared.ErrOperatorRequired
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Delivered {
			return fmt.Errorf("%w: quotation %s already closed", shared.ErrPreconditionFailed, id)
		}
		if shared.NormalizeAmount(amount-q.Balance) != 0 {
			return fmt.Errorf("%w: got %s, outstanding %s", shared.ErrInvalidAmount,
				shared.FormatAmount(amount), shared.FormatAmount(q.Balance))
		}
		if err := tx.UpdateBalance(ctx, id, 0, true); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return tx.InsertPayment(ctx, Payment{
			Code:        uuid.NewString(),
			QuotationID: id,
			Amount:      shared.NormalizeAmount(amount),
			Method:      method,
			OperatorID:  operatorID,
			PaidAt:      s.now().UTC(),
		})
	})
	if err != nil {
		s.countFailure(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PaymentRecorded()
	}
	s.recordAudit(ctx, operatorID, "quotations:finalize_payment", id, map[string]any{
		"amount": shared.FormatAmount(amount),
		"method": method,
	})
	s.bumpCache(ctx)
	return s.repo.Get(ctx, id)
}

// UpdateDeliveries applies new delivered-so-far quantities, moving stock by the
// delta per line, optionally together with a partial payment. Validation is
// all-or-nothing: any invalid quantity or stock shortfall rejects the whole
// request before a single write.
func (s *Service) UpdateDeliveries(ctx context.Context, id string, req UpdateDeliveriesRequest, operatorID string) (*Quotation, error) {
	if operatorID == "" {
		return nil, shared.ErrOperatorRequired
	}
	if len(req.Updates) == 0 && req.Payment == nil {
		return nil, errors.New("quotations: nothing to apply")
	}
	if req.Payment != nil && req.Payment.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", shared.ErrInvalidAmount)
	}

	insertedKey := ""
	if s.idempotency != nil && req.IdempotencyKey != "" {
		key := fmt.Sprintf("deliveries:%s:%s", id, req.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, "quotations"); err != nil {
			return nil, err
		}
		insertedKey = key
	}

	var paymentRecorded bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Delivered {
			return fmt.Errorf("%w: quotation %s already closed", shared.ErrPreconditionFailed, id)
		}

		// Pass 1: every requested quantity must sit inside [0, ordered], and
		// each variant may appear at most once. A repeated variant is rejected
		// rather than resolved, same as out-of-range input: the operator must
		// resubmit an unambiguous payload.
		deltas := make(map[string]int, len(req.Updates))
		seen := make(map[string]struct{}, len(req.Updates))
		for _, upd := range req.Updates {
			line := q.Line(upd.VariantID)
			if line == nil {
				return fmt.Errorf("%w: variant %s not on quotation %s", shared.ErrNotFound, upd.VariantID, id)
			}
			if _, dup := seen[upd.VariantID]; dup {
				return &shared.InvalidQuantityError{
					VariantID: upd.VariantID,
					Requested: upd.Delivered,
					Ordered:   line.Quantity,
				}
			}
			seen[upd.VariantID] = struct{}{}
			if upd.Delivered < 0 || upd.Delivered > line.Quantity {
				return &shared.InvalidQuantityError{
					VariantID: upd.VariantID,
					Requested: upd.Delivered,
					Ordered:   line.Quantity,
				}
			}
			if delta := upd.Delivered - line.DeliveredQty; delta != 0 {
				deltas[upd.VariantID] = delta
			}
		}

		// Pass 2: positive deltas leave the warehouse and must fit available
		// stock. The FOR UPDATE read keeps the row locked until commit so two
		// racing updates cannot both pass against a stale balance.
		for variantID, delta := range deltas {
			if delta <= 0 {
				continue
			}
			available, err := tx.GetStockForUpdate(ctx, variantID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("%w: variant %s missing from stock ledger", shared.ErrNotFound, variantID)
				}
				return err
			}
			if delta > available {
				return &shared.InsufficientStockError{
					VariantID: variantID,
					Requested: delta,
					Available: available,
				}
			}
		}

		// Apply: line quantities and stock deltas commit together.
		for _, upd := range req.Updates {
			delta, touched := deltas[upd.VariantID]
			if !touched {
				continue
			}
			if err := tx.UpdateLineDelivered(ctx, id, upd.VariantID, upd.Delivered); err != nil {
				return fmt.Errorf("update line %s: %w", upd.VariantID, err)
			}
			if err := tx.ApplyStockDelta(ctx, upd.VariantID, -delta, id, operatorID); err != nil {
				return fmt.Errorf("apply stock delta %s: %w", upd.VariantID, err)
			}
		}

		if req.Payment != nil {
			newBalance := shared.NormalizeAmount(q.Balance - req.Payment.Amount)
			if newBalance < 0 {
				newBalance = 0
			}
			if err := tx.UpdateBalance(ctx, id, newBalance, newBalance == 0); err != nil {
				return fmt.Errorf("update balance: %w", err)
			}
			if err := tx.InsertPayment(ctx, Payment{
				Code:        uuid.NewString(),
				QuotationID: id,
				Amount:      shared.NormalizeAmount(req.Payment.Amount),
				Method:      req.Payment.Method,
				OperatorID:  operatorID,
				PaidAt:      s.now().UTC(),
			}); err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
			paymentRecorded = true
		}
		return nil
	})
	if err != nil {
		if insertedKey != "" {
			_ = s.idempotency.Delete(ctx, insertedKey)
		}
		s.countFailure(err)
		return nil, err
	}

	if s.metrics != nil {
		if len(req.Updates) > 0 {
			s.metrics.DeliveryApplied()
		}
		if paymentRecorded {
			s.metrics.PaymentRecorded()
		}
	}
	meta := map[string]any{"updates": len(req.Updates)}
	if req.Payment != nil {
		meta["payment"] = shared.FormatAmount(req.Payment.Amount)
		meta["method"] = req.Payment.Method
	}
	s.recordAudit(ctx, operatorID, "quotations:update_deliveries", id, meta)
	s.bumpCache(ctx)
	return s.repo.Get(ctx, id)
}

// MarkDelivered closes a quotation. Permitted only when fully paid and fully
// delivered; closing an already-closed quotation is a no-op so the operator's
// double-click does not surface an error.
func (s *Service) MarkDelivered(ctx context.Context, id, operatorID string) (*Quotation, error) {
	if operatorID == "" {
		return nil, shared.ErrOperatorRequired
	}

	alreadyClosed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Delivered {
			alreadyClosed = true
			return nil
		}
		if q.Balance != 0 {
			return fmt.Errorf("%w: outstanding balance %s", shared.ErrPreconditionFailed, shared.FormatAmount(q.Balance))
		}
		if !q.FullyDelivered() {
			return fmt.Errorf("%w: undelivered quantities remain", shared.ErrPreconditionFailed)
		}
		return tx.SetDelivered(ctx, id)
	})
	if err != nil {
		s.countFailure(err)
		return nil, err
	}

	if !alreadyClosed {
		s.recordAudit(ctx, operatorID, "quotations:mark_delivered", id, nil)
		s.bumpCache(ctx)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a quotation and its lines and payments. Stock already moved
// through deliveries is not restored: goods physically left the warehouse and
// deletion is record cleanup, not inventory rollback.
func (s *Service) Delete(ctx context.Context, id, operatorID string) error {
	if operatorID == "" {
		return shared.ErrOperatorRequired
	}

	var deliveredAtRemoval map[string]any
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		delivered := make(map[string]any, len(q.Lines))
		for _, line := range q.Lines {
			delivered[line.VariantID] = line.DeliveredQty
		}
		deliveredAtRemoval = delivered
		return tx.Delete(ctx, id)
	})
	if err != nil {
		s.countFailure(err)
		return err
	}

	s.recordAudit(ctx, operatorID, "quotations:delete", id, map[string]any{
		"delivered_at_removal": deliveredAtRemoval,
	})
	s.bumpCache(ctx)
	return nil
}

// Get returns a quotation with its lines.
func (s *Service) Get(ctx context.Context, id string) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

// List returns the filtered, paginated pending-payments listing, cached until
// the next mutation bumps the cache version.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Quotation, int, error) {
	if s.cache == nil {
		return s.repo.List(ctx, req)
	}
	var cached listPage
	err := s.cache.FetchList(ctx, req, &cached, func(ctx context.Context) (listPage, error) {
		items, total, err := s.repo.List(ctx, req)
		if err != nil {
			return listPage{}, err
		}
		return listPage{Items: items, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return cached.Items, cached.Total, nil
}

// ListPayments returns the payment ledger entries for a quotation.
func (s *Service) ListPayments(ctx context.Context, quotationID string) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, quotationID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, quotationID)
}

func (s *Service) recordAudit(ctx context.Context, operatorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OperatorID: operatorID,
		Action:     action,
		Entity:     "quotation",
		EntityID:   entityID,
		Meta:       meta,
	})
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

func (s *Service) countFailure(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.EngineFailure(failureReason(err))
}

func failureReason(err error) string {
	var invalidQty *shared.InvalidQuantityError
	var insufficient *shared.InsufficientStockError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, shared.ErrPreconditionFailed):
		return "precondition_failed"
	case errors.As(err, &invalidQty):
		return "invalid_quantity"
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	default:
		return "internal"
	}
}
