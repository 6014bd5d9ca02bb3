package orders

import (
	"time"

	"github.com/google/uuid"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"
	PaymentRefunded  = "refunded"
)

// Payment methods.
const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
	MethodPaypal   = "paypal"
)

var validPaymentStatuses = map[string]bool{
	PaymentPending: true, PaymentPaid: true, PaymentCancelled: true, PaymentRefunded: true,
}

var validPaymentMethods = map[string]bool{
	MethodCash: true, MethodCard: true, MethodTransfer: true, MethodPaypal: true,
}

// LineItem is one ordered analysis. Name and unit price are snapshots taken
// from the catalog at creation time; the order stays coherent even if the
// catalog entry is later edited or deleted.
type LineItem struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
	Subtotal   float64   `json:"subtotal"`
}

// Order is a billed request for one or more analyses. Line items are
// immutable after creation; only payment fields and notes can be patched.
type Order struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	PaymentStatus string     `json:"payment_status"`
	PaymentMethod string     `json:"payment_method"`
	LineItems     []LineItem `json:"line_items"`
	TotalDue      float64    `json:"total_due"`
	AmountPaid    float64    `json:"amount_paid"`
	Discount      float64    `json:"discount"`
	Notes         *string    `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OrderWithPatient is the read shape for listings: the order plus the
// resolved patient, or sentinels when the user row is gone.
type OrderWithPatient struct {
	Order
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
}
