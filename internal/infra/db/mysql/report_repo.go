package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
	"github.com/bryanwahyu/esg-analyzer/internal/infra/db/sqlutil"
)

type ReportRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db, now: time.Now}
}

const reportColumns = `id, company_name, industry, input_metrics, total_esg_score, recommendations, created_at`

// Create inserts one report row and returns it with its new id.
func (r *ReportRepository) Create(ctx context.Context, in domain.NewReport) (*domain.Report, error) {
	const q = `
INSERT INTO esg_reports
  (id, company_name, industry, input_metrics, total_esg_score, recommendations, created_at)
VALUES (?,?,?,?,?,?,?);`

	rep := &domain.Report{
		ID:              domain.ReportID(uuid.NewString()),
		CompanyName:     in.CompanyName,
		Industry:        in.Industry,
		InputMetrics:    in.InputMetrics,
		TotalEsgScore:   in.TotalEsgScore,
		Recommendations: in.Recommendations,
		// DATETIME(6) keeps microseconds
		CreatedAt: r.now().UTC().Truncate(time.Microsecond),
	}
	_, err := r.db.ExecContext(ctx, q,
		rep.ID, rep.CompanyName, rep.Industry,
		sqlutil.JSONParam(rep.InputMetrics),
		sqlutil.FloatParam(rep.TotalEsgScore),
		sqlutil.JSONParam(rep.Recommendations),
		rep.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return rep, nil
}

func (r *ReportRepository) Get(ctx context.Context, id domain.ReportID) (*domain.Report, error) {
	q := `SELECT ` + reportColumns + ` FROM esg_reports WHERE id=? LIMIT 1;`
	rep, err := scanReport(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rep, err
}

func (r *ReportRepository) Latest(ctx context.Context, limit int) ([]*domain.Report, error) {
	q := `SELECT ` + reportColumns + ` FROM esg_reports ORDER BY created_at DESC, id DESC LIMIT ?;`
	return r.list(ctx, q, sqlutil.Limit(limit))
}

func (r *ReportRepository) Paginate(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	page, pageSize, offset := sqlutil.Page(page, pageSize)

	q := `SELECT ` + reportColumns + ` FROM esg_reports ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?;`
	data, err := r.list(ctx, q, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM esg_reports;`).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}
	return domain.PaginatedResult{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: sqlutil.TotalPages(total, pageSize),
	}, nil
}

func (r *ReportRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Report, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	out := []*domain.Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var (
		rep           domain.Report
		metrics, recs []byte
		score         sql.NullFloat64
	)
	if err := row.Scan(&rep.ID, &rep.CompanyName, &rep.Industry, &metrics, &score, &recs, &rep.CreatedAt); err != nil {
		return nil, err
	}
	rep.InputMetrics = sqlutil.JSONColumn(metrics)
	rep.TotalEsgScore = sqlutil.FloatPtr(score)
	rep.Recommendations = sqlutil.JSONColumn(recs)
	return &rep, nil
}
