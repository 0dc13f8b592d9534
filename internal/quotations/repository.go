package quotations

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// NewRepository builds the pgx-backed quotation store.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const quotationColumns = `id, customer_name, phone, payment_type, total, balance, paid, delivered, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id string) (*Quotation, error) {
	return r.get(ctx, id, false)
}

func (r *repository) GetForUpdate(ctx context.Context, id string) (*Quotation, error) {
	return r.get(ctx, id, true)
}

func (r *repository) get(ctx context.Context, id string, forUpdate bool) (*Quotation, error) {
	query := fmt.Sprintf(`SELECT %s FROM quotations WHERE id = $1`, quotationColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	q, err := scanQuotation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: quotation %s", shared.ErrNotFound, id)
		}
		return nil, err
	}

	lines, err := r.getLines(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Lines = lines
	return q, nil
}

func (r *repository) getLines(ctx context.Context, quotationID string) ([]Line, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quotation_id, variant_id, name, color, unit_price, quantity, delivered_qty, image_url, line_order
		FROM quotation_lines
		WHERE quotation_id = $1
		ORDER BY line_order, id
	`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		var color, imageURL pgtype.Text
		var unitPrice pgtype.Numeric
		if err := rows.Scan(&line.ID, &line.QuotationID, &line.VariantID, &line.Name,
			&color, &unitPrice, &line.Quantity, &line.DeliveredQty, &imageURL, &line.LineOrder); err != nil {
			return nil, err
		}
		if color.Valid {
			val := color.String
			line.Color = &val
		}
		if imageURL.Valid {
			line.ImageURL = imageURL.String
		}
		if unitPrice.Valid {
			f, _ := unitPrice.Float64Value()
			line.UnitPrice = f.Float64
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Quotation, int, error) {
	conditions := []string{"TRUE"}
	var args []interface{}
	argPos := 1

	if req.Paid != nil {
		conditions = append(conditions, fmt.Sprintf("paid = $%d", argPos))
		args = append(args, *req.Paid)
		argPos++
	}
	if req.Delivered != nil {
		conditions = append(conditions, fmt.Sprintf("delivered = $%d", argPos))
		args = append(args, *req.Delivered)
		argPos++
	}
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(customer_name ILIKE $%d OR phone ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *req.From)
		argPos++
	}
	if req.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argPos))
		args = append(args, *req.To)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM quotations %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM quotations
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, quotationColumns, whereClause, argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotations []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		quotations = append(quotations, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range quotations {
		lines, err := r.getLines(ctx, quotations[i].ID)
		if err != nil {
			return nil, 0, err
		}
		quotations[i].Lines = lines
	}
	return quotations, total, nil
}

func (r *repository) Insert(ctx context.Context, q Quotation) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotations (id, customer_name, phone, payment_type, total, balance, paid, delivered, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), NOW())
	`, q.ID, q.CustomerName, q.Phone, string(q.PaymentType), q.Total, q.Balance, q.Paid, q.Delivered, nullTime(q.CreatedAt))
	if err != nil {
		return err
	}
	for _, line := range q.Lines {
		_, err := r.db.Exec(ctx, `
			INSERT INTO quotation_lines (quotation_id, variant_id, name, color, unit_price, quantity, delivered_qty, image_url, line_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, q.ID, line.VariantID, line.Name, line.Color, line.UnitPrice, line.Quantity, line.DeliveredQty, line.ImageURL, line.LineOrder)
		if err != nil {
			return fmt.Errorf("insert line %s: %w", line.VariantID, err)
		}
	}
	return nil
}

func (r *repository) UpdateBalance(ctx context.Context, id string, balance float64, paid bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET balance = $2, paid = $3, updated_at = NOW() WHERE id = $1
	`, id, balance, paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %s", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdateLineDelivered(ctx context.Context, quotationID, variantID string, delivered int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotation_lines SET delivered_qty = $3 WHERE quotation_id = $1 AND variant_id = $2
	`, quotationID, variantID, delivered)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: variant %s on quotation %s", shared.ErrNotFound, variantID, quotationID)
	}
	_, err = r.db.Exec(ctx, `UPDATE quotations SET updated_at = NOW() WHERE id = $1`, quotationID)
	return err
}

func (r *repository) SetDelivered(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET delivered = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %s", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotation_payments (code, quotation_id, amount, method, operator_id, paid_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
	`, p.Code, p.QuotationID, p.Amount, p.Method, p.OperatorID, nullTime(p.PaidAt))
	return err
}

func (r *repository) ListPayments(ctx context.Context, quotationID string) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT code, quotation_id, amount, method, operator_id, paid_at
		FROM quotation_payments
		WHERE quotation_id = $1
		ORDER BY paid_at, code
	`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		var amount pgtype.Numeric
		var paidAt pgtype.Timestamptz
		if err := rows.Scan(&p.Code, &p.QuotationID, &amount, &p.Method, &p.OperatorID, &paidAt); err != nil {
			return nil, err
		}
		if amount.Valid {
			f, _ := amount.Float64Value()
			p.Amount = f.Float64
		}
		if paidAt.Valid {
			p.PaidAt = paidAt.Time
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM quotation_payments WHERE quotation_id = $1`, id); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM quotation_lines WHERE quotation_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM quotations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %s", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) GetStockForUpdate(ctx context.Context, variantID string) (int, error) {
	var available int
	err := r.db.QueryRow(ctx, `
		SELECT available FROM stock_levels WHERE variant_id = $1 FOR UPDATE
	`, variantID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: variant %s", shared.ErrNotFound, variantID)
		}
		return 0, err
	}
	return available, nil
}

func (r *repository) ApplyStockDelta(ctx context.Context, variantID string, delta int, refID, operatorID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE stock_levels SET available = available + $2, updated_at = NOW() WHERE variant_id = $1
	`, variantID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: variant %s", shared.ErrNotFound, variantID)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO stock_movements (code, variant_id, qty_change, reason, ref_id, operator_id, occurred_at)
		VALUES ($1, $2, $3, 'DELIVERY', $4, $5, NOW())
	`, uuid.NewString(), variantID, delta, refID, operatorID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuotation(row rowScanner) (*Quotation, error) {
	var q Quotation
	var paymentType string
	var total, balance pgtype.Numeric
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(&q.ID, &q.CustomerName, &q.Phone, &paymentType,
		&total, &balance, &q.Paid, &q.Delivered, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	q.PaymentType = PaymentType(paymentType)
	if total.Valid {
		f, _ := total.Float64Value()
		q.Total = f.Float64
	}
	if balance.Valid {
		f, _ := balance.Float64Value()
		q.Balance = f.Float64
	}
	if createdAt.Valid {
		q.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		q.UpdatedAt = updatedAt.Time
	}
	return &q, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
