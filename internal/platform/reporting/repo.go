package reporting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository supplies the raw counts and series the dashboard aggregates.
type Repository interface {
	// CountSamplesNotInState counts samples whose state differs from the
	// given one.
	CountSamplesNotInState(ctx context.Context, state string) (int, error)
	// CountOrdersByStatus counts orders with the given payment status.
	CountOrdersByStatus(ctx context.Context, status string) (int, error)
	CountUsers(ctx context.Context) (int, error)
	// SampleAnalysisIDs returns the analysis id of every sample, one entry
	// per sample.
	SampleAnalysisIDs(ctx context.Context) ([]uuid.UUID, error)
	// AnalysisNames maps the given analysis ids to their current names.
	// Missing ids are absent from the map.
	AnalysisNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	OrderCreationTimes(ctx context.Context) ([]time.Time, error)
}
