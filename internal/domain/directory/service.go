package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when the requested user does not exist.
var ErrNotFound = errors.New("user not found")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// UpsertFromIdentity creates or updates the local mirror of an identity
// provider account, keyed by its external id. Called for both user.created
// and user.updated events: Clerk retries deliveries and does not guarantee
// ordering, so both event types converge on the same upsert.
func (s *Service) UpsertFromIdentity(ctx context.Context, p IdentityProfile) (*User, error) {
	if p.ClerkID == "" {
		return nil, fmt.Errorf("clerk id is required")
	}

	existing, err := s.repo.GetByClerkID(ctx, p.ClerkID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup user %s: %w", p.ClerkID, err)
	}

	if existing == nil || errors.Is(err, pgx.ErrNoRows) {
		u := &User{
			ClerkID:   p.ClerkID,
			Name:      p.Name,
			Email:     p.Email,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
		if err := s.repo.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create user %s: %w", p.ClerkID, err)
		}
		return u, nil
	}

	existing.Name = p.Name
	existing.Email = p.Email
	existing.UpdatedAt = p.UpdatedAt
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update user %s: %w", p.ClerkID, err)
	}
	return existing, nil
}

// DeleteByClerkID removes the mirror of a deleted identity account. Unknown
// ids are a no-op: the deletion may race ahead of the creation event, or the
// account may never have synced.
func (s *Service) DeleteByClerkID(ctx context.Context, clerkID string) error {
	if clerkID == "" {
		return fmt.Errorf("clerk id is required")
	}
	return s.repo.DeleteByClerkID(ctx, clerkID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, limit, offset)
}
