package advice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/esg-analyzer/internal/application"
	domain "github.com/bryanwahyu/esg-analyzer/internal/domain/advice"
	"github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
)

// Service generates and looks up AI advice for stored reports.
type Service struct {
	Reports reports.Repository
	Repo    domain.Repository
	Advisor domain.Advisor // nil when no provider is configured
	Clock   application.Clock
	Logger  *slog.Logger
}

// Advise asks the advisor about one report and stores the answer.
func (s *Service) Advise(ctx context.Context, reportID reports.ReportID) (*domain.Advice, error) {
	if s.Advisor == nil {
		return nil, domain.ErrAdvisorDisabled
	}
	report, err := s.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}

	content, model, err := s.Advisor.Advise(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("advise report %s: %w", reportID, err)
	}

	a := &domain.Advice{
		ID:        domain.AdviceID(uuid.NewString()),
		ReportID:  string(report.ID),
		Model:     model,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save advice: %w", err)
	}
	s.logger().Info("advice stored", "report_id", report.ID, "advice_id", a.ID, "model", model)
	return a, nil
}

// Latest returns the most recent advice for a report.
func (s *Service) Latest(ctx context.Context, reportID reports.ReportID) (*domain.Advice, error) {
	if _, err := s.Reports.Get(ctx, reportID); err != nil {
		return nil, err
	}
	return s.Repo.LatestByReport(ctx, string(reportID))
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
