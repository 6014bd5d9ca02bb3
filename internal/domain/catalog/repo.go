package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for catalog entries.
type Repository interface {
	Create(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error)
	Update(ctx context.Context, a *Analysis) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Analysis, int, error)
}
