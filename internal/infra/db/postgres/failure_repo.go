package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/esg-analyzer/internal/domain/failures"
	"github.com/bryanwahyu/esg-analyzer/internal/infra/db/sqlutil"
)

type FailureRepository struct {
	db *sql.DB
}

func NewFailureRepository(db *sql.DB) *FailureRepository { return &FailureRepository{db: db} }

func (r *FailureRepository) Save(ctx context.Context, f *domain.Failure) error {
	const q = `
INSERT INTO esg_pipeline_failures
  (stage, kind, company_name, industry, message, exit_code, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id;`
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, q,
		f.Stage, f.Kind, f.CompanyName, f.Industry, f.Message,
		sqlutil.IntParam(f.ExitCode), created,
	).Scan(&f.ID)
}

func (r *FailureRepository) Recent(ctx context.Context, limit int) ([]*domain.Failure, error) {
	const q = `
SELECT id, stage, kind, company_name, industry, message, exit_code, created_at
FROM esg_pipeline_failures
ORDER BY created_at DESC, id DESC
LIMIT $1;`
	rows, err := r.db.QueryContext(ctx, q, sqlutil.Limit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Failure{}
	for rows.Next() {
		var f domain.Failure
		var code sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Stage, &f.Kind, &f.CompanyName, &f.Industry, &f.Message, &code, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.ExitCode = sqlutil.IntPtr(code)
		out = append(out, &f)
	}
	return out, rows.Err()
}
