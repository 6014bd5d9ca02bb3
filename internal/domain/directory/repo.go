package directory

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the user directory.
type Repository interface {
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByClerkID(ctx context.Context, clerkID string) (*User, error)
	DeleteByClerkID(ctx context.Context, clerkID string) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}
