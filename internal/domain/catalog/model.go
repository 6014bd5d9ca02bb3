package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Parameter is one measured quantity in an analysis template, e.g. the
// hemoglobin row of a complete blood count. Samples copy these at generation
// time, so later template edits never touch recorded results.
type Parameter struct {
	Name           string `json:"name"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"reference_range"`
}

// Analysis is a catalog entry offered by the laboratory.
type Analysis struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	WaitDays    int         `json:"wait_days"`
	Cost        float64     `json:"cost"`
	Parameters  []Parameter `json:"parameters"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
