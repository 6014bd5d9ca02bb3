package samples

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for samples.
type Repository interface {
	Create(ctx context.Context, s *Sample) error
	GetByID(ctx context.Context, id uuid.UUID) (*Sample, error)
	// ReplaceResults overwrites the result set and state of a sample.
	ReplaceResults(ctx context.Context, id uuid.UUID, results []Result, state string) error
	// UpdateState changes only the lifecycle state.
	UpdateState(ctx context.Context, id uuid.UUID, state string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Sample, int, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Sample, error)
	// ListIDsByOrder returns the ids of samples already generated for an
	// order. Used as the idempotency guard inside the generation transaction.
	ListIDsByOrder(ctx context.Context, orderID uuid.UUID) ([]uuid.UUID, error)
	// LockOrderForGeneration takes a row lock on the order so concurrent
	// generation requests serialize. Returns pgx.ErrNoRows when the order
	// does not exist.
	LockOrderForGeneration(ctx context.Context, orderID uuid.UUID) error
	// ListCompletedForUser returns completed samples belonging to paid
	// orders of the given user.
	ListCompletedForUser(ctx context.Context, userID uuid.UUID) ([]*Sample, error)
}
