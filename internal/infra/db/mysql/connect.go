package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/esg-analyzer/internal/infra/db/sqlutil"
)

func Connect(ctx context.Context, dsn string, pool sqlutil.Pool) (*sql.DB, error) {
	return sqlutil.Open(ctx, "mysql", dsn, pool)
}
