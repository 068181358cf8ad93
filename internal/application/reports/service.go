package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/esg-analyzer/internal/application"
	"github.com/bryanwahyu/esg-analyzer/internal/domain/failures"
	domain "github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
)

const sideEffectTimeout = 10 * time.Second

// Service is the analysis orchestrator: validate → engine → decode → persist.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	Repo   domain.Repository
	Engine domain.Engine
	// Archive and Failures are optional.
	Archive  domain.OutputArchive
	Failures failures.Repository
	Clock    application.Clock
	Logger   *slog.Logger

	policy atomic.Pointer[domain.MetricPolicy]
}

// SetPolicy swaps the metric policy used by subsequent runs.
func (s *Service) SetPolicy(p *domain.MetricPolicy) { s.policy.Store(p) }

// Policy returns the active metric policy.
func (s *Service) Policy() *domain.MetricPolicy {
	if p := s.policy.Load(); p != nil {
		return p
	}
	return domain.DefaultMetricPolicy()
}

//
// ==== USE CASES ====
//

// Run executes one pipeline instance. Any failure stops the remaining stages
// and comes back as a *domain.PipelineError; a report exists only when the
// returned error is nil. Nothing is retried.
func (s *Service) Run(ctx context.Context, req domain.AnalysisRequest) (*domain.Report, error) {
	log := s.logger().With("company", req.CompanyName(), "industry", req.Industry())
	stage := domain.StageValidating

	fail := func(err error) (*domain.Report, error) {
		kind := domain.Kind(err)
		if stage == domain.StageValidating {
			log.Info("analysis rejected", "stage", stage, "kind", kind, "err", err)
		} else {
			log.Warn("analysis failed", "stage", stage, "kind", kind, "err", err)
		}
		s.journal(ctx, req, stage, err)
		return nil, &domain.PipelineError{Stage: stage, Err: err}
	}

	if err := req.Validate(s.Policy()); err != nil {
		return fail(err)
	}
	input, err := domain.EncodeRequest(req)
	if err != nil {
		return fail(err)
	}

	stage = domain.StageDispatching
	log.Debug("pipeline stage", "stage", stage)
	out, err := s.Engine.Invoke(ctx, input)
	if err != nil {
		return fail(err)
	}

	stage = domain.StageDecoding
	log.Debug("pipeline stage", "stage", stage, "output_bytes", len(out.Stdout))
	if out.Truncated {
		return fail(&domain.DecodeError{Reason: "engine output exceeds the size limit"})
	}
	result, err := domain.DecodeResult(out.Stdout)
	if err != nil {
		return fail(err)
	}

	stage = domain.StagePersisting
	log.Debug("pipeline stage", "stage", stage)
	score := result.TotalEsgScore
	report, err := s.Repo.Create(ctx, domain.NewReport{
		CompanyName:     req.CompanyName(),
		Industry:        req.Industry(),
		InputMetrics:    req.Metrics(),
		TotalEsgScore:   &score,
		Recommendations: result.Recommendations,
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrPersistence, err))
	}

	s.archive(ctx, log, report.ID, out.Stdout)

	log.Info("analysis stored",
		"stage", domain.StageDone,
		"report_id", report.ID,
		"total_esg_score", score,
		"engine_ms", out.DurationMS,
		"extra_fields", len(result.Extra),
	)
	return report, nil
}

// Get ambil 1 report by id
func (s *Service) Get(ctx context.Context, id domain.ReportID) (*domain.Report, error) {
	return s.Repo.Get(ctx, id)
}

// Latest ambil N report terakhir
func (s *Service) Latest(ctx context.Context, limit int) ([]*domain.Report, error) {
	return s.Repo.Latest(ctx, limit)
}

// Paginate returns one page of reports, newest first.
func (s *Service) Paginate(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	return s.Repo.Paginate(ctx, page, pageSize)
}

// RecentFailures lists journaled pipeline failures, newest first.
func (s *Service) RecentFailures(ctx context.Context, limit int) ([]*failures.Failure, error) {
	if s.Failures == nil {
		return []*failures.Failure{}, nil
	}
	return s.Failures.Recent(ctx, limit)
}

// journal records engine and decode failures. Validation failures are the
// caller's problem and persistence failures must not cause further writes,
// so both are skipped, as are cancelled requests. Busy rejections are only
// counted in metrics; an overloaded engine pool must not add database load.
func (s *Service) journal(ctx context.Context, req domain.AnalysisRequest, stage domain.Stage, err error) {
	if s.Failures == nil {
		return
	}
	if stage != domain.StageDispatching && stage != domain.StageDecoding {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrEngineBusy) {
		return
	}

	f := &failures.Failure{
		Stage:       string(stage),
		Kind:        domain.Kind(err),
		CompanyName: req.CompanyName(),
		Industry:    req.Industry(),
		Message:     err.Error(),
		CreatedAt:   s.now(),
	}
	var exitErr *domain.EngineExitError
	if errors.As(err, &exitErr) {
		code := exitErr.Code
		f.ExitCode = &code
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if jerr := s.Failures.Save(jctx, f); jerr != nil {
		s.logger().Error("failure journal write failed", "stage", stage, "err", jerr)
	}
}

// archive uploads the raw engine output of a stored report. It runs only
// after a successful create and never fails the request.
func (s *Service) archive(ctx context.Context, log *slog.Logger, id domain.ReportID, raw []byte) {
	if s.Archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	url, err := s.Archive.Archive(actx, id, raw)
	if err != nil {
		log.Warn("engine output archive failed", "report_id", id, "err", err)
		return
	}
	log.Debug("engine output archived", "report_id", id, "url", url)
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
