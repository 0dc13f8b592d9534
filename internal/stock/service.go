package stock

import (
	"context"
	"errors"

	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLevel(ctx context.Context, variantID string) (Level, error)
	ListMovements(ctx context.Context, variantID string, limit int) ([]Movement, error)
}

// TxRepository exposes writes available inside one transaction.
type TxRepository interface {
	GetLevelForUpdate(ctx context.Context, variantID string) (Level, error)
	UpsertLevel(ctx context.Context, level Level) error
	InsertMovement(ctx context.Context, m Movement) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the admin surface over the stock ledger. Delivery-driven stock
// deltas do not pass through here; they run inside the reconciliation engine's
// transaction against the same tables.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds the stock service. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// GetLevel returns the available quantity for a variant.
func (s *Service) GetLevel(ctx context.Context, variantID string) (Level, error) {
	if variantID == "" {
		return Level{}, errors.New("stock: variant required")
	}
	return s.repo.GetLevel(ctx, variantID)
}

// Adjust posts a manual adjustment. Negative adjustments may not take the
// level below zero; the rejection names the shortfall so the operator can
// correct the count instead of guessing.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Level, error) {
	if input.VariantID == "" {
		return Level{}, errors.New("stock: variant required")
	}
	if input.QtyChange == 0 {
		return Level{}, errors.New("stock: qty change must be non zero")
	}
	if input.OperatorID == "" {
		return Level{}, shared.ErrOperatorRequired
	}
	if input.Reason == "" {
		input.Reason = ReasonCorrection
	}

	var updated Level
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		level, err := tx.GetLevelForUpdate(ctx, input.VariantID)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			level = Level{VariantID: input.VariantID}
		}
		newQty := level.Available + input.QtyChange
		if newQty < 0 {
			return &shared.InsufficientStockError{
				VariantID: input.VariantID,
				Requested: -input.QtyChange,
				Available: level.Available,
			}
		}
		level.Available = newQty
		if err := tx.UpsertLevel(ctx, level); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, Movement{
			VariantID:  input.VariantID,
			QtyChange:  input.QtyChange,
			Reason:     input.Reason,
			OperatorID: input.OperatorID,
		}); err != nil {
			return err
		}
		updated = level
		return nil
	})
	if err != nil {
		return Level{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OperatorID: input.OperatorID,
			Action:     "stock:adjust",
			Entity:     "stock_level",
			EntityID:   input.VariantID,
			Meta: map[string]any{
				"qty_change": input.QtyChange,
				"reason":     string(input.Reason),
				"note":       input.Note,
			},
		})
	}
	return updated, nil
}

// ListMovements returns recent ledger entries for a variant.
func (s *Service) ListMovements(ctx context.Context, variantID string, limit int) ([]Movement, error) {
	if variantID == "" {
		return nil, errors.New("stock: variant required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListMovements(ctx, variantID, limit)
}
