package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenluz/lumenluz-backoffice/internal/platform/db"
	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed stock ledger store. It reads and writes
// the same stock_levels/stock_movements tables the reconciliation engine
// touches inside its delivery transactions.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) GetLevel(ctx context.Context, variantID string) (Level, error) {
	return r.getLevel(ctx, variantID, false)
}

func (r *repository) GetLevelForUpdate(ctx context.Context, variantID string) (Level, error) {
	return r.getLevel(ctx, variantID, true)
}

func (r *repository) getLevel(ctx context.Context, variantID string, forUpdate bool) (Level, error) {
	query := `SELECT variant_id, available, updated_at FROM stock_levels WHERE variant_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var level Level
	var updatedAt pgtype.Timestamptz
	err := r.db.QueryRow(ctx, query, variantID).Scan(&level.VariantID, &level.Available, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{}, fmt.Errorf("%w: variant %s", shared.ErrNotFound, variantID)
		}
		return Level{}, err
	}
	if updatedAt.Valid {
		level.UpdatedAt = updatedAt.Time
	}
	return level, nil
}

func (r *repository) UpsertLevel(ctx context.Context, level Level) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO stock_levels (variant_id, available, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (variant_id)
		DO UPDATE SET available = EXCLUDED.available, updated_at = NOW()
	`, level.VariantID, level.Available)
	return err
}

func (r *repository) InsertMovement(ctx context.Context, m Movement) error {
	if m.Code == "" {
		m.Code = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO stock_movements (code, variant_id, qty_change, reason, ref_id, operator_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, m.Code, m.VariantID, m.QtyChange, string(m.Reason), m.RefID, m.OperatorID)
	return err
}

func (r *repository) ListMovements(ctx context.Context, variantID string, limit int) ([]Movement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, code, variant_id, qty_change, reason, ref_id, operator_id, occurred_at
		FROM stock_movements
		WHERE variant_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, variantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		var refID pgtype.Text
		var occurredAt pgtype.Timestamptz
		var reason string
		if err := rows.Scan(&m.ID, &m.Code, &m.VariantID, &m.QtyChange, &reason, &refID, &m.OperatorID, &occurredAt); err != nil {
			return nil, err
		}
		m.Reason = MovementReason(reason)
		if refID.Valid {
			m.RefID = refID.String
		}
		if occurredAt.Valid {
			m.OccurredAt = occurredAt.Time
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
