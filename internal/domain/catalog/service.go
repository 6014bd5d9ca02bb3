package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when the requested analysis does not exist.
var ErrNotFound = errors.New("analysis not found")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// validate applies the catalog's write-time rules. Parameters are required:
// an analysis with no measurable quantities could only ever produce empty
// samples.
func validate(a *Analysis) error {
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if a.WaitDays < 1 {
		return fmt.Errorf("wait_days must be at least 1")
	}
	if a.Cost < 0 {
		return fmt.Errorf("cost must not be negative")
	}
	if len(a.Parameters) == 0 {
		return fmt.Errorf("at least one parameter is required")
	}
	for i, p := range a.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter %d: name is required", i)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, a *Analysis) error {
	if err := validate(a); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// Update replaces every field of an existing analysis. Samples generated
// before the update keep their frozen copies of the old parameters.
func (s *Service) Update(ctx context.Context, a *Analysis) error {
	if err := validate(a); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update analysis: %w", err)
	}
	return nil
}

// Delete removes a catalog entry unconditionally. Orders and samples that
// reference it keep their snapshots and degrade to sentinel display values.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Analysis, int, error) {
	return s.repo.List(ctx, limit, offset)
}
