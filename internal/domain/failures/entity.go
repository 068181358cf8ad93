package failures

import "time"

// Failure represents a journaled pipeline failure: the engine could not be
// run, exited non-zero, or produced output that did not decode.
type Failure struct {
	ID          int64     `json:"id"`
	Stage       string    `json:"stage"`
	Kind        string    `json:"kind"`
	CompanyName string    `json:"company_name,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	Message     string    `json:"message"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
