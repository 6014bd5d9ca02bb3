package orders

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the order ledger.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Order, int, error)
}
