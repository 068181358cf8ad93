package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"

	"github.com/bryanwahyu/esg-analyzer/internal/infra/db/sqlutil"
)

// Connect opens a Postgres pool. driver is "postgres" (lib/pq) or "pgx".
func Connect(ctx context.Context, driver, dsn string, pool sqlutil.Pool) (*sql.DB, error) {
	switch driver {
	case "", "postgres":
		driver = "postgres"
	case "pgx":
	default:
		return nil, fmt.Errorf("postgres: unsupported driver %q", driver)
	}
	return sqlutil.Open(ctx, driver, dsn, pool)
}
