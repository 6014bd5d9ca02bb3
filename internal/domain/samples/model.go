package samples

import (
	"time"

	"github.com/google/uuid"
)

// Sample states.
const (
	StateUntaken    = "untaken"
	StateProcessing = "processing"
	StateCompleted  = "completed"
)

var validStates = map[string]bool{
	StateUntaken:    true,
	StateProcessing: true,
	StateCompleted:  true,
}

// Result is one measured parameter on a sample. The name, unit, and reference
// range are frozen from the catalog at generation time; Value starts null and
// is filled in when the lab submits results.
type Result struct {
	ParamName      string `json:"param_name"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"reference_range"`
	Value          any    `json:"value"`
}

// Sample is one specimen generated from an order line item.
type Sample struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	AnalysisID uuid.UUID `json:"analysis_id"`
	State      string    `json:"state"`
	Results    []Result  `json:"results"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Details is a sample joined with the live catalog entry and the ordering
// patient, with sentinels substituted for rows that no longer exist.
type Details struct {
	Sample
	AnalysisName        string `json:"analysis_name"`
	AnalysisDescription string `json:"analysis_description"`
	PatientName         string `json:"patient_name"`
	PatientEmail        string `json:"patient_email"`
}
