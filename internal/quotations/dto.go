package quotations

import "time"

// CreateQuotationRequest is the ingestion contract for the storefront checkout flow.
type CreateQuotationRequest struct {
	CustomerName string                   `json:"customer_name" validate:"required"`
	Phone        string                   `json:"phone" validate:"required"`
	PaymentType  PaymentType              `json:"payment_type" validate:"required,oneof=ADVANCE_FULL ADVANCE_HALF"`
	Lines        []CreateQuotationLineReq `json:"lines" validate:"required,min=1,dive"`
}

// CreateQuotationLineReq carries one ordered variant.
type CreateQuotationLineReq struct {
	VariantID string  `json:"variant_id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Color     *string `json:"color,omitempty"`
	UnitPrice float64 `json:"unit_price" validate:"gt=0"`
	Quantity  int     `json:"quantity" validate:"gt=0"`
	ImageURL  string  `json:"image_url,omitempty"`
}

// FinalizePaymentRequest settles the full outstanding balance in one payment.
type FinalizePaymentRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Method string  `json:"method" validate:"required"`
}

// DeliveryUpdate sets the new delivered-so-far quantity for one line item.
// Delivered is absolute, not a delta; the engine computes the stock delta
// against the current value.
type DeliveryUpdate struct {
	VariantID string `json:"variant_id" validate:"required"`
	Delivered int    `json:"delivered" validate:"gte=0"`
}

// PaymentInput is an optional partial payment submitted together with a
// delivery update.
type PaymentInput struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Method string  `json:"method" validate:"required"`
}

// UpdateDeliveriesRequest is the compound pay-and-deliver operation payload.
type UpdateDeliveriesRequest struct {
	Updates        []DeliveryUpdate `json:"updates" validate:"dive"`
	Payment        *PaymentInput    `json:"payment,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

// ListRequest filters the pending-payments listing.
type ListRequest struct {
	Paid      *bool
	Delivered *bool
	Search    string
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}
