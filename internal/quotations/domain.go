package quotations

import (
	"time"
)

// PaymentType mirrors the storefront's agreed payment arrangement. Informational
// only; the engine never branches on it.
type PaymentType string

const (
	// PaymentTypeUpfront means the customer agreed to pay the full amount in advance.
	PaymentTypeUpfront PaymentType = "ADVANCE_FULL"
	// PaymentTypeHalfUpfront means half the amount was agreed up front.
	PaymentTypeHalfUpfront PaymentType = "ADVANCE_HALF"
)

// Status is the derived lifecycle state of a quotation.
type Status string

const (
	// StatusOpen: outstanding balance or undelivered quantities remain.
	StatusOpen Status = "OPEN"
	// StatusReadyToClose: fully paid and fully delivered, awaiting explicit close.
	StatusReadyToClose Status = "READY_TO_CLOSE"
	// StatusClosed: explicitly marked delivered; terminal.
	StatusClosed Status = "CLOSED"
)

// Quotation is a customer order settled through one or more payments and
// fulfilled through one or more partial deliveries.
type Quotation struct {
	ID           string      `json:"id"`
	CustomerName string      `json:"customer_name"`
	Phone        string      `json:"phone"`
	PaymentType  PaymentType `json:"payment_type"`
	Total        float64     `json:"total"`
	Balance      float64     `json:"balance"`
	Paid         bool        `json:"paid"`
	Delivered    bool        `json:"delivered"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Lines        []Line      `json:"lines,omitempty"`
}

// Line is one product variant within a quotation. Quantity is fixed at
// creation; DeliveredQty moves between 0 and Quantity through delivery updates.
type Line struct {
	ID           int64   `json:"id"`
	QuotationID  string  `json:"quotation_id"`
	VariantID    string  `json:"variant_id"`
	Name         string  `json:"name"`
	Color        *string `json:"color,omitempty"`
	UnitPrice    float64 `json:"unit_price"`
	Quantity     int     `json:"quantity"`
	DeliveredQty int     `json:"delivered_qty"`
	ImageURL     string  `json:"image_url,omitempty"`
	LineOrder    int     `json:"line_order"`
}

// Payment is a ledger entry recorded atomically with the balance change it caused.
type Payment struct {
	Code        string    `json:"code"`
	QuotationID string    `json:"quotation_id"`
	Amount      float64   `json:"amount"`
	Method      string    `json:"method"`
	OperatorID  string    `json:"operator_id"`
	PaidAt      time.Time `json:"paid_at"`
}

// Line returns the line item for the given variant, nil when absent.
func (q *Quotation) Line(variantID string) *Line {
	for i := range q.Lines {
		if q.Lines[i].VariantID == variantID {
			return &q.Lines[i]
		}
	}
	return nil
}

// FullyDelivered reports whether every line item reached its ordered quantity.
func (q *Quotation) FullyDelivered() bool {
	for i := range q.Lines {
		if q.Lines[i].DeliveredQty < q.Lines[i].Quantity {
			return false
		}
	}
	return true
}

// Status derives the lifecycle state. Closed wins over everything; a quotation
// that is fully paid and fully delivered but not yet closed is ready to close.
func (q *Quotation) Status() Status {
	if q.Delivered {
		return StatusClosed
	}
	if q.Balance == 0 && q.FullyDelivered() {
		return StatusReadyToClose
	}
	return StatusOpen
}
