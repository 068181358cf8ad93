package advice

import (
	"context"

	"github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
)

// Repository port for persisting and querying advice
type Repository interface {
	Save(ctx context.Context, a *Advice) error
	LatestByReport(ctx context.Context, reportID string) (*Advice, error)
}

// Advisor asks an AI model for a narrative on a report and returns its JSON
// answer together with the model name that produced it.
type Advisor interface {
	Advise(ctx context.Context, r *reports.Report) (content string, model string, err error)
}
