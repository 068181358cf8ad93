package reports

import (
	"encoding/json"
	"time"
)

// ReportID identifier type
type ReportID string

// Stage of one pipeline instance
type Stage string

const (
	StageValidating  Stage = "validating"
	StageDispatching Stage = "dispatching"
	StageDecoding    Stage = "decoding"
	StagePersisting  Stage = "persisting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Aggregate Root: Report. Created once per successful pipeline run and never
// updated afterwards.
type Report struct {
	ID              ReportID        `json:"id"`
	CompanyName     string          `json:"company_name"`
	Industry        string          `json:"industry"`
	InputMetrics    json.RawMessage `json:"input_metrics"`
	TotalEsgScore   *float64        `json:"total_esg_score"`
	Recommendations json.RawMessage `json:"recommendations"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewReport carries the caller-supplied columns of a report; the repository
// fills in ID and CreatedAt.
type NewReport struct {
	CompanyName     string
	Industry        string
	InputMetrics    json.RawMessage
	TotalEsgScore   *float64
	Recommendations json.RawMessage
}

// AnalysisResult is the decoded engine output. It never outlives the pipeline
// instance that produced it.
type AnalysisResult struct {
	TotalEsgScore   float64
	Recommendations json.RawMessage
	// Extra holds any other top-level fields the engine emitted, untouched.
	Extra map[string]json.RawMessage
}
