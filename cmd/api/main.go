package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bryanwahyu/esg-analyzer/internal/application"
	appadvice "github.com/bryanwahyu/esg-analyzer/internal/application/advice"
	appreports "github.com/bryanwahyu/esg-analyzer/internal/application/reports"
	"github.com/bryanwahyu/esg-analyzer/internal/config"
	domadvice "github.com/bryanwahyu/esg-analyzer/internal/domain/advice"
	"github.com/bryanwahyu/esg-analyzer/internal/domain/failures"
	"github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
	openaiadv "github.com/bryanwahyu/esg-analyzer/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/esg-analyzer/internal/infra/db/mysql"
	"github.com/bryanwahyu/esg-analyzer/internal/infra/db/postgres"
	"github.com/bryanwahyu/esg-analyzer/internal/infra/db/sqlutil"
	"github.com/bryanwahyu/esg-analyzer/internal/infra/executor/process"
	"github.com/bryanwahyu/esg-analyzer/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/esg-analyzer/internal/infra/storage"
	"github.com/bryanwahyu/esg-analyzer/internal/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

type repositories struct {
	reports  reports.Repository
	advice   domadvice.Repository
	failures failures.Repository
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, repositories, error) {
	pool := sqlutil.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	if cfg.Database.Driver == "mysql" {
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN(), pool)
		if err != nil {
			return nil, repositories{}, err
		}
		return db, repositories{
			reports:  mysqlp.NewReportRepository(db),
			advice:   mysqlp.NewAdviceRepository(db),
			failures: mysqlp.NewFailureRepository(db),
		}, nil
	}
	db, err := postgres.Connect(ctx, cfg.Database.Driver, cfg.PostgresDSN(), pool)
	if err != nil {
		return nil, repositories{}, err
	}
	return db, repositories{
		reports:  postgres.NewReportRepository(db),
		advice:   postgres.NewAdviceRepository(db),
		failures: postgres.NewFailureRepository(db),
	}, nil
}

func run(logger *slog.Logger) error {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repos, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
	}
	defer db.Close()

	runner, err := process.NewRunner(cfg.RunnerConfig(), logger.With("component", "engine"))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := runner.Check(ctx); err != nil {
		logger.Warn("engine command not found, analyses will fail until it is installed", "err", err)
	}

	svc := &appreports.Service{
		Repo:     repos.reports,
		Engine:   runner,
		Failures: repos.failures,
		Clock:    application.SystemClock{},
		Logger:   logger.With("component", "orchestrator"),
	}
	svc.SetPolicy(cfg.MetricPolicy())

	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		svc.Archive = store
	}

	adviceSvc := &appadvice.Service{
		Reports: repos.reports,
		Repo:    repos.advice,
		Clock:   application.SystemClock{},
		Logger:  logger.With("component", "advice"),
	}
	if cfg.OpenAI.APIKey != "" {
		adviceSvc.Advisor = openaiadv.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	} else {
		logger.Info("openai api key not set, advice endpoints disabled")
	}

	go func() {
		err := config.Watch(ctx, path, logger, func(next *config.Config) {
			svc.SetPolicy(next.MetricPolicy())
			logger.Info("metric policy reloaded", "keys", len(svc.Policy().Keys()))
		})
		if err != nil {
			logger.Error("config watch stopped", "err", err)
		}
	}()

	metrics := middleware.NewMetrics()
	metrics.EngineRunning = runner.Running
	limiter := middleware.NewRateLimiter(cfg.Server.RateBurst, cfg.Server.RateLimit)
	defer limiter.Close()

	handler := httpserver.NewRouter(svc, adviceSvc, httpserver.Options{
		Logger:      logger,
		Metrics:     metrics,
		RateLimiter: limiter,
		APIKeys:     cfg.Server.APIKeys,
		CORSOrigins: cfg.Server.CORSOrigins,
		Health: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
			"engine":   runner,
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "engine", cfg.Engine.Command, "driver", cfg.Database.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down server...")
	// in-flight analyses get the engine timeout plus a margin to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.Timeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
