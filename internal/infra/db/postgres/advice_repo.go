package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/bryanwahyu/esg-analyzer/internal/domain/advice"
	"github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
)

type AdviceRepository struct {
	db *sql.DB
}

func NewAdviceRepository(db *sql.DB) *AdviceRepository {
	return &AdviceRepository{db: db}
}

// Save appends an advice record
func (r *AdviceRepository) Save(ctx context.Context, a *domain.Advice) error {
	const q = `
INSERT INTO esg_report_advice (id, report_id, model, content, created_at)
VALUES ($1,$2,$3,$4,$5);`
	content := a.Content
	if strings.TrimSpace(content) == "" {
		// content column requires valid JSON
		content = "{}"
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q, a.ID, a.ReportID, a.Model, content, created)
	return err
}

// LatestByReport returns the newest advice for a report
func (r *AdviceRepository) LatestByReport(ctx context.Context, reportID string) (*domain.Advice, error) {
	const q = `
SELECT id, report_id, model, content, created_at
FROM esg_report_advice
WHERE report_id=$1
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	var a domain.Advice
	err := r.db.QueryRowContext(ctx, q, reportID).Scan(&a.ID, &a.ReportID, &a.Model, &a.Content, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
