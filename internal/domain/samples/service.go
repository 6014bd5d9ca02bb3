package samples

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when the requested sample does not exist.
	ErrNotFound = errors.New("sample not found")
	// ErrOrderNotFound is returned when generation targets a missing order.
	ErrOrderNotFound = errors.New("order not found")
)

// Sentinels substituted when a referenced row no longer exists. Frozen
// results on the sample itself are unaffected.
const (
	UnknownAnalysisName = "Unknown Analysis"
	NoDescription       = "No description."
	UnknownPatientName  = "Unknown Patient"
	UnknownPatientEmail = "N/A"
)

// ParamTemplate is a catalog parameter used to freeze a result row at
// generation time.
type ParamTemplate struct {
	Name           string
	Unit           string
	ReferenceRange string
}

// AnalysisRef is the catalog slice samples need: the template for frozen
// results at generation, and display fields for detail reads.
type AnalysisRef struct {
	Name        string
	Description string
	Parameters  []ParamTemplate
}

// AnalysisResolver looks up a catalog entry, returning (nil, nil) when it
// does not exist.
type AnalysisResolver interface {
	ResolveAnalysis(ctx context.Context, id uuid.UUID) (*AnalysisRef, error)
}

// OrderRef carries the ordering user and the analysis id of each line item,
// one entry per line.
type OrderRef struct {
	UserID      uuid.UUID
	AnalysisIDs []uuid.UUID
}

// OrderResolver looks up an order, returning (nil, nil) when it does not
// exist.
type OrderResolver interface {
	ResolveOrder(ctx context.Context, id uuid.UUID) (*OrderRef, error)
}

// UserRef is the directory slice attached to detail reads.
type UserRef struct {
	Name  string
	Email string
}

// UserResolver looks up a directory user, returning (nil, nil) when it does
// not exist.
type UserResolver interface {
	ResolveUser(ctx context.Context, id uuid.UUID) (*UserRef, error)
}

// TxRunner executes fn inside a database transaction. Repository calls made
// with the ctx fn receives run on that transaction.
type TxRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// GenerationResult reports what GenerateForOrder did. Generated is false when
// samples already existed and SampleIDs holds the pre-existing ids.
type GenerationResult struct {
	Generated bool        `json:"generated"`
	SampleIDs []uuid.UUID `json:"sample_ids"`
}

// ResultInput is one submitted measurement.
type ResultInput struct {
	ParamName      string `json:"param_name"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"reference_range"`
	Value          any    `json:"value"`
}

// UpdateSampleInput is the partial patch body for a sample. Nil fields are
// left untouched.
type UpdateSampleInput struct {
	State   *string        `json:"state,omitempty"`
	Results *[]ResultInput `json:"results,omitempty"`
}

type Service struct {
	repo     Repository
	tx       TxRunner
	analyses AnalysisResolver
	orders   OrderResolver
	users    UserResolver
}

func NewService(repo Repository, tx TxRunner, analyses AnalysisResolver, orders OrderResolver, users UserResolver) *Service {
	return &Service{repo: repo, tx: tx, analyses: analyses, orders: orders, users: users}
}

// GenerateForOrder creates one sample per order line item, freezing the
// catalog parameters into null-valued results. The whole operation runs in a
// transaction holding a row lock on the order, so a repeat call — concurrent
// or later — finds the existing samples and creates nothing.
//
// Line items whose analysis has since been deleted are skipped rather than
// failing the batch.
func (s *Service) GenerateForOrder(ctx context.Context, orderID uuid.UUID) (*GenerationResult, error) {
	var result GenerationResult
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		if err := s.repo.LockOrderForGeneration(ctx, orderID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		existing, err := s.repo.ListIDsByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list existing samples: %w", err)
		}
		if len(existing) > 0 {
			result = GenerationResult{Generated: false, SampleIDs: existing}
			return nil
		}

		ref, err := s.orders.ResolveOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("resolve order: %w", err)
		}
		if ref == nil {
			return ErrOrderNotFound
		}

		ids := make([]uuid.UUID, 0, len(ref.AnalysisIDs))
		for _, analysisID := range ref.AnalysisIDs {
			analysis, err := s.analyses.ResolveAnalysis(ctx, analysisID)
			if err != nil {
				return fmt.Errorf("resolve analysis %s: %w", analysisID, err)
			}
			if analysis == nil {
				continue
			}
			results := make([]Result, 0, len(analysis.Parameters))
			for _, p := range analysis.Parameters {
				results = append(results, Result{
					ParamName:      p.Name,
					Unit:           p.Unit,
					ReferenceRange: p.ReferenceRange,
					Value:          nil,
				})
			}
			sample := &Sample{
				OrderID:    orderID,
				AnalysisID: analysisID,
				State:      StateProcessing,
				Results:    results,
			}
			if err := s.repo.Create(ctx, sample); err != nil {
				return fmt.Errorf("create sample: %w", err)
			}
			ids = append(ids, sample.ID)
		}
		result = GenerationResult{Generated: true, SampleIDs: ids}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitResults replaces the sample's result set wholesale and marks it
// completed. Submitting again overwrites; the operation is idempotent for
// identical payloads.
func (s *Service) SubmitResults(ctx context.Context, id uuid.UUID, inputs []ResultInput) (*Sample, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one result is required")
	}
	results, err := buildResults(inputs)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceResults(ctx, id, results, StateCompleted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("replace results: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Sample, error) {
	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sample, nil
}

// buildResults validates submitted measurements. Values must be JSON
// scalars; nil marks a parameter as not yet measured.
func buildResults(inputs []ResultInput) ([]Result, error) {
	results := make([]Result, 0, len(inputs))
	for i, in := range inputs {
		if in.ParamName == "" {
			return nil, fmt.Errorf("result %d: param_name is required", i)
		}
		switch in.Value.(type) {
		case string, float64, int, bool, nil:
		default:
			return nil, fmt.Errorf("result %d: unsupported value type %T", i, in.Value)
		}
		results = append(results, Result{
			ParamName:      in.ParamName,
			Unit:           in.Unit,
			ReferenceRange: in.ReferenceRange,
			Value:          in.Value,
		})
	}
	return results, nil
}

// Update applies a partial patch of state and/or results. Unlike
// SubmitResults it does not force the completed state.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateSampleInput) (*Sample, error) {
	if in.State != nil && !validStates[*in.State] {
		return nil, fmt.Errorf("invalid state: %s", *in.State)
	}

	sample, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	state := sample.State
	if in.State != nil {
		state = *in.State
	}

	if in.Results != nil {
		results, err := buildResults(*in.Results)
		if err != nil {
			return nil, err
		}
		err = s.repo.ReplaceResults(ctx, id, results, state)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("replace results: %w", err)
		}
		return s.Get(ctx, id)
	}

	if in.State != nil {
		if err := s.repo.UpdateState(ctx, id, state); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("update state: %w", err)
		}
	}
	return s.Get(ctx, id)
}

// Delete removes a sample unconditionally.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// withDetails joins a sample with the live catalog entry and the ordering
// patient. Deleted referents fall back to sentinels; the frozen results are
// returned as stored.
func (s *Service) withDetails(ctx context.Context, sample *Sample) (*Details, error) {
	d := &Details{
		Sample:              *sample,
		AnalysisName:        UnknownAnalysisName,
		AnalysisDescription: NoDescription,
		PatientName:         UnknownPatientName,
		PatientEmail:        UnknownPatientEmail,
	}

	analysis, err := s.analyses.ResolveAnalysis(ctx, sample.AnalysisID)
	if err != nil {
		return nil, fmt.Errorf("resolve analysis: %w", err)
	}
	if analysis != nil {
		d.AnalysisName = analysis.Name
		if analysis.Description != "" {
			d.AnalysisDescription = analysis.Description
		}
	}

	order, err := s.orders.ResolveOrder(ctx, sample.OrderID)
	if err != nil {
		return nil, fmt.Errorf("resolve order: %w", err)
	}
	if order != nil {
		user, err := s.users.ResolveUser(ctx, order.UserID)
		if err != nil {
			return nil, fmt.Errorf("resolve user: %w", err)
		}
		if user != nil {
			d.PatientName = user.Name
			d.PatientEmail = user.Email
		}
	}
	return d, nil
}

func (s *Service) GetDetails(ctx context.Context, id uuid.UUID) (*Details, error) {
	sample, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withDetails(ctx, sample)
}

func (s *Service) ListWithDetails(ctx context.Context, limit, offset int) ([]*Details, int, error) {
	items, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	result := make([]*Details, 0, len(items))
	for _, sample := range items {
		d, err := s.withDetails(ctx, sample)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, d)
	}
	return result, total, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Sample, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// ListCompletedForUser returns the completed samples of the user's paid
// orders, joined with details. This backs the patient results view.
func (s *Service) ListCompletedForUser(ctx context.Context, userID uuid.UUID) ([]*Details, error) {
	items, err := s.repo.ListCompletedForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := make([]*Details, 0, len(items))
	for _, sample := range items {
		d, err := s.withDetails(ctx, sample)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}
