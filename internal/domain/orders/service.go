package orders

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when the requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Sentinels substituted when a referenced user row no longer exists.
const (
	UnknownPatientName  = "Unknown Patient"
	UnknownPatientEmail = "N/A"
)

// AnalysisInfo is the slice of a catalog entry the ledger snapshots at
// creation time.
type AnalysisInfo struct {
	Name string
	Cost float64
}

// AnalysisResolver looks up a catalog entry, returning (nil, nil) when it
// does not exist.
type AnalysisResolver interface {
	ResolveAnalysis(ctx context.Context, id uuid.UUID) (*AnalysisInfo, error)
}

// PatientInfo is the denormalized user slice attached to order reads.
type PatientInfo struct {
	Name  string
	Email string
}

// UserResolver looks up a directory user, returning (nil, nil) when it does
// not exist.
type UserResolver interface {
	ResolveUser(ctx context.Context, id uuid.UUID) (*PatientInfo, error)
}

// CreateItemInput is one requested analysis on a new order. Prices are never
// accepted from the client; the service resolves them from the catalog.
type CreateItemInput struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	Quantity   int       `json:"quantity"`
}

// CreateOrderInput is the create request body.
type CreateOrderInput struct {
	UserID          uuid.UUID         `json:"user_id"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentMethod   string            `json:"payment_method"`
	Items           []CreateItemInput `json:"items"`
	DiscountPercent float64           `json:"discount_percent"`
	AmountPaid      float64           `json:"amount_paid"`
	Notes           *string           `json:"notes,omitempty"`
}

// UpdateOrderInput is the partial patch body. Nil fields are left untouched.
type UpdateOrderInput struct {
	PaymentStatus *string  `json:"payment_status,omitempty"`
	PaymentMethod *string  `json:"payment_method,omitempty"`
	AmountPaid    *float64 `json:"amount_paid,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

type Service struct {
	repo     Repository
	analyses AnalysisResolver
	users    UserResolver
}

func NewService(repo Repository, analyses AnalysisResolver, users UserResolver) *Service {
	return &Service{repo: repo, analyses: analyses, users: users}
}

// round2 rounds to cents. Totals are computed once and stored, never derived
// on read.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Create builds an order from {analysis_id, quantity} pairs. Every analysis
// must resolve, snapshots of name and unit price are taken, and all money
// amounts are computed here regardless of what the client sent.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if in.UserID == uuid.Nil {
		return nil, fmt.Errorf("user_id is required")
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("at least one line item is required")
	}
	if in.PaymentStatus == "" {
		in.PaymentStatus = PaymentPending
	}
	if !validPaymentStatuses[in.PaymentStatus] {
		return nil, fmt.Errorf("invalid payment status: %s", in.PaymentStatus)
	}
	if !validPaymentMethods[in.PaymentMethod] {
		return nil, fmt.Errorf("invalid payment method: %s", in.PaymentMethod)
	}
	if in.DiscountPercent < 0 || in.DiscountPercent > 100 {
		return nil, fmt.Errorf("discount percent must be between 0 and 100")
	}
	if in.AmountPaid < 0 {
		return nil, fmt.Errorf("amount paid must not be negative")
	}

	patient, err := s.users.ResolveUser(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if patient == nil {
		return nil, fmt.Errorf("user %s does not exist", in.UserID)
	}

	var lineItems []LineItem
	var sum float64
	for i, item := range in.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("item %d: quantity must be at least 1", i)
		}
		info, err := s.analyses.ResolveAnalysis(ctx, item.AnalysisID)
		if err != nil {
			return nil, fmt.Errorf("resolve analysis %s: %w", item.AnalysisID, err)
		}
		if info == nil {
			return nil, fmt.Errorf("analysis %s does not exist", item.AnalysisID)
		}
		subtotal := round2(float64(item.Quantity) * info.Cost)
		lineItems = append(lineItems, LineItem{
			AnalysisID: item.AnalysisID,
			Name:       info.Name,
			Quantity:   item.Quantity,
			UnitPrice:  info.Cost,
			Subtotal:   subtotal,
		})
		sum += subtotal
	}

	discount := round2(sum * in.DiscountPercent / 100)
	o := &Order{
		UserID:        in.UserID,
		PaymentStatus: in.PaymentStatus,
		PaymentMethod: in.PaymentMethod,
		LineItems:     lineItems,
		TotalDue:      round2(sum - discount),
		AmountPaid:    in.AmountPaid,
		Discount:      discount,
		Notes:         in.Notes,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// Update applies a partial patch to the payment fields. Line items and
// computed totals are immutable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateOrderInput) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.PaymentStatus != nil {
		if !validPaymentStatuses[*in.PaymentStatus] {
			return nil, fmt.Errorf("invalid payment status: %s", *in.PaymentStatus)
		}
		o.PaymentStatus = *in.PaymentStatus
	}
	if in.PaymentMethod != nil {
		if !validPaymentMethods[*in.PaymentMethod] {
			return nil, fmt.Errorf("invalid payment method: %s", *in.PaymentMethod)
		}
		o.PaymentMethod = *in.PaymentMethod
	}
	if in.AmountPaid != nil {
		if *in.AmountPaid < 0 {
			return nil, fmt.Errorf("amount paid must not be negative")
		}
		o.AmountPaid = *in.AmountPaid
	}
	if in.Notes != nil {
		o.Notes = in.Notes
	}

	if err := s.repo.Update(ctx, o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update order: %w", err)
	}
	return o, nil
}

// Delete removes an order unconditionally. Samples generated from it are
// orphaned, not cascaded; their reads fall back to sentinels.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// withPatient attaches the resolved user, or sentinels when the row is gone.
func (s *Service) withPatient(ctx context.Context, o *Order) (*OrderWithPatient, error) {
	patient, err := s.users.ResolveUser(ctx, o.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if patient == nil {
		patient = &PatientInfo{Name: UnknownPatientName, Email: UnknownPatientEmail}
	}
	return &OrderWithPatient{Order: *o, PatientName: patient.Name, PatientEmail: patient.Email}, nil
}

func (s *Service) GetWithPatient(ctx context.Context, id uuid.UUID) (*OrderWithPatient, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withPatient(ctx, o)
}

func (s *Service) ListWithPatients(ctx context.Context, limit, offset int) ([]*OrderWithPatient, int, error) {
	items, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	result := make([]*OrderWithPatient, 0, len(items))
	for _, o := range items {
		op, err := s.withPatient(ctx, o)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, op)
	}
	return result, total, nil
}
