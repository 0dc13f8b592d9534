package stock

import "time"

// Level is the available quantity for one product variant.
type Level struct {
	VariantID string    `json:"variant_id"`
	Available int       `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MovementReason enumerates why stock changed.
type MovementReason string

const (
	// ReasonDelivery: stock left with a quotation delivery.
	ReasonDelivery MovementReason = "DELIVERY"
	// ReasonRestock: inbound replenishment.
	ReasonRestock MovementReason = "RESTOCK"
	// ReasonCorrection: manual count correction, either direction.
	ReasonCorrection MovementReason = "CORRECTION"
)

// Movement is one ledger entry. QtyChange is signed; negative means stock left
// the warehouse.
type Movement struct {
	ID         int64          `json:"id"`
	Code       string         `json:"code"`
	VariantID  string         `json:"variant_id"`
	QtyChange  int            `json:"qty_change"`
	Reason     MovementReason `json:"reason"`
	RefID      string         `json:"ref_id,omitempty"`
	OperatorID string         `json:"operator_id"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// AdjustmentInput describes a manual stock adjustment.
type AdjustmentInput struct {
	VariantID  string         `json:"variant_id" validate:"required"`
	QtyChange  int            `json:"qty_change" validate:"required"`
	Reason     MovementReason `json:"reason" validate:"required,oneof=RESTOCK CORRECTION"`
	Note       string         `json:"note,omitempty"`
	OperatorID string         `json:"-"`
}
