package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/esg-analyzer/internal/domain/failures"
	domain "github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
)

type fakeEngine struct {
	mu     sync.Mutex
	calls  int
	inputs [][]byte
	invoke func(input []byte) (domain.EngineOutput, error)
}

func (e *fakeEngine) Invoke(_ context.Context, input []byte) (domain.EngineOutput, error) {
	e.mu.Lock()
	e.calls++
	e.inputs = append(e.inputs, append([]byte(nil), input...))
	e.mu.Unlock()
	return e.invoke(input)
}

func stdout(s string) func([]byte) (domain.EngineOutput, error) {
	return func([]byte) (domain.EngineOutput, error) {
		return domain.EngineOutput{Stdout: []byte(s), PID: 42}, nil
	}
}

type fakeRepo struct {
	mu      sync.Mutex
	reports map[domain.ReportID]*domain.Report
	creates int
	err     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{reports: map[domain.ReportID]*domain.Report{}}
}

func (r *fakeRepo) Create(_ context.Context, in domain.NewReport) (*domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.err != nil {
		return nil, r.err
	}
	rep := &domain.Report{
		ID:              domain.ReportID(uuid.NewString()),
		CompanyName:     in.CompanyName,
		Industry:        in.Industry,
		InputMetrics:    in.InputMetrics,
		TotalEsgScore:   in.TotalEsgScore,
		Recommendations: in.Recommendations,
		CreatedAt:       time.Now().UTC(),
	}
	r.reports[rep.ID] = rep
	return rep, nil
}

func (r *fakeRepo) Get(_ context.Context, id domain.ReportID) (*domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rep, nil
}

func (r *fakeRepo) Latest(context.Context, int) ([]*domain.Report, error) { return nil, nil }

func (r *fakeRepo) Paginate(context.Context, int, int) (domain.PaginatedResult, error) {
	return domain.PaginatedResult{}, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

type fakeArchive struct {
	mu  sync.Mutex
	ids []domain.ReportID
	err error
}

func (a *fakeArchive) Archive(_ context.Context, id domain.ReportID, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, id)
	return "http://minio/reports/" + string(id), a.err
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []*failures.Failure
}

func (j *fakeJournal) Save(_ context.Context, f *failures.Failure) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, f)
	return nil
}

func (j *fakeJournal) Recent(context.Context, int) ([]*failures.Failure, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.entries, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newService(engine *fakeEngine, repo *fakeRepo) (*Service, *fakeArchive, *fakeJournal) {
	archive := &fakeArchive{}
	journal := &fakeJournal{}
	svc := &Service{
		Repo:     repo,
		Engine:   engine,
		Archive:  archive,
		Failures: journal,
		Clock:    fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	svc.SetPolicy(domain.NewMetricPolicy(true, false, []string{"energyUse"}))
	return svc, archive, journal
}

func acmeRequest() domain.AnalysisRequest {
	return domain.NewAnalysisRequest("Acme", "Manufacturing", []byte(`{"energyUse":120,"fines":0,"policies":["ethics"]}`))
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		t.Fatalf("unmarshal %s: %v", a, err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return reflect.DeepEqual(va, vb)
}

func TestRunPersistsReport(t *testing.T) {
	engine := &fakeEngine{invoke: stdout(`{"totalEsgScore":72.5,"aiAnalysis":["Reduce water usage"]}`)}
	repo := newFakeRepo()
	svc, archive, journal := newService(engine, repo)

	req := acmeRequest()
	report, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.TotalEsgScore == nil || *report.TotalEsgScore != 72.5 {
		t.Fatalf("score = %v, want 72.5", report.TotalEsgScore)
	}
	if !jsonEqual(t, report.InputMetrics, req.Metrics()) {
		t.Fatalf("input metrics %s differ from request %s", report.InputMetrics, req.Metrics())
	}
	var metrics map[string]any
	_ = json.Unmarshal(report.InputMetrics, &metrics)
	if metrics["energyUse"] != float64(120) {
		t.Fatalf("inputMetrics.energyUse = %v", metrics["energyUse"])
	}
	if string(report.Recommendations) != `["Reduce water usage"]` {
		t.Fatalf("recommendations = %s", report.Recommendations)
	}
	if repo.count() != 1 || engine.calls != 1 {
		t.Fatalf("expected one report and one engine call, got %d / %d", repo.count(), engine.calls)
	}
	if len(archive.ids) != 1 || archive.ids[0] != report.ID {
		t.Fatalf("expected raw output archived for %s, got %v", report.ID, archive.ids)
	}
	if len(journal.entries) != 0 {
		t.Fatalf("successful run must not journal failures")
	}

	var sent map[string]any
	if err := json.Unmarshal(engine.inputs[0], &sent); err != nil {
		t.Fatalf("engine input not json: %v", err)
	}
	if sent["companyName"] != "Acme" || sent["industry"] != "Manufacturing" || sent["energyUse"] != float64(120) {
		t.Fatalf("unexpected engine input %v", sent)
	}
}

func TestRunEngineExitPersistsNothing(t *testing.T) {
	engine := &fakeEngine{invoke: func([]byte) (domain.EngineOutput, error) {
		return domain.EngineOutput{Stdout: []byte(`{"totalEsgScore":99,"aiAnalysis":[]}`)},
			&domain.EngineExitError{Code: 1, Stderr: "Traceback"}
	}}
	repo := newFakeRepo()
	svc, archive, journal := newService(engine, repo)

	report, err := svc.Run(context.Background(), acmeRequest())
	if report != nil {
		t.Fatalf("expected no report")
	}
	if !errors.Is(err, domain.ErrEngineExit) {
		t.Fatalf("expected engine exit error, got %v", err)
	}
	if domain.StageOf(err) != domain.StageDispatching {
		t.Fatalf("stage = %s", domain.StageOf(err))
	}
	if repo.creates != 0 || len(archive.ids) != 0 {
		t.Fatalf("nothing may be written after an engine failure")
	}
	if len(journal.entries) != 1 {
		t.Fatalf("expected journaled failure, got %d", len(journal.entries))
	}
	entry := journal.entries[0]
	if entry.Kind != "engine_exit" || entry.ExitCode == nil || *entry.ExitCode != 1 || entry.Stage != "dispatching" {
		t.Fatalf("unexpected journal entry %+v", entry)
	}
}

func TestRunMalformedOutputPersistsNothing(t *testing.T) {
	for name, out := range map[string]string{
		"garbage":       "model loaded\n{",
		"missing score": `{"aiAnalysis":["x"]}`,
		"engine error":  `{"error":"Prediction failed"}`,
	} {
		t.Run(name, func(t *testing.T) {
			engine := &fakeEngine{invoke: stdout(out)}
			repo := newFakeRepo()
			svc, _, journal := newService(engine, repo)

			_, err := svc.Run(context.Background(), acmeRequest())
			if !errors.Is(err, domain.ErrDecode) {
				t.Fatalf("expected decode error, got %v", err)
			}
			if domain.StageOf(err) != domain.StageDecoding {
				t.Fatalf("stage = %s", domain.StageOf(err))
			}
			if repo.creates != 0 {
				t.Fatalf("expected zero persisted reports")
			}
			if len(journal.entries) != 1 || journal.entries[0].Kind != "decode" {
				t.Fatalf("expected decode failure journaled, got %+v", journal.entries)
			}
		})
	}
}

func TestRunTruncatedOutputIsDecodeError(t *testing.T) {
	engine := &fakeEngine{invoke: func([]byte) (domain.EngineOutput, error) {
		return domain.EngineOutput{Stdout: []byte(`{"totalEsgScore":1,"aiAnalysis":[]}`), Truncated: true}, nil
	}}
	repo := newFakeRepo()
	svc, _, _ := newService(engine, repo)

	if _, err := svc.Run(context.Background(), acmeRequest()); !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if repo.creates != 0 {
		t.Fatalf("expected zero persisted reports")
	}
}

func TestRunPersistenceFailureHasNoFurtherSideEffects(t *testing.T) {
	engine := &fakeEngine{invoke: stdout(`{"totalEsgScore":50,"aiAnalysis":[]}`)}
	repo := newFakeRepo()
	repo.err = errors.New("connection reset")
	svc, archive, journal := newService(engine, repo)

	_, err := svc.Run(context.Background(), acmeRequest())
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if domain.StageOf(err) != domain.StagePersisting {
		t.Fatalf("stage = %s", domain.StageOf(err))
	}
	if engine.calls != 1 {
		t.Fatalf("engine must not be re-invoked, calls=%d", engine.calls)
	}
	if repo.creates != 1 {
		t.Fatalf("expected exactly one attempted write, got %d", repo.creates)
	}
	if len(archive.ids) != 0 || len(journal.entries) != 0 {
		t.Fatalf("persistence failure must not archive or journal")
	}
}

func TestRunValidationStopsBeforeDispatch(t *testing.T) {
	engine := &fakeEngine{invoke: stdout(`{"totalEsgScore":50,"aiAnalysis":[]}`)}
	repo := newFakeRepo()
	svc, _, journal := newService(engine, repo)

	req := domain.NewAnalysisRequest("", "Retail", []byte(`{"mystery":1}`))
	_, err := svc.Run(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if domain.StageOf(err) != domain.StageValidating {
		t.Fatalf("stage = %s", domain.StageOf(err))
	}
	if engine.calls != 0 || repo.creates != 0 || len(journal.entries) != 0 {
		t.Fatalf("validation failure must have no side effects")
	}
}

func TestRunCancelledIsNotJournaled(t *testing.T) {
	engine := &fakeEngine{invoke: func([]byte) (domain.EngineOutput, error) {
		return domain.EngineOutput{}, fmt.Errorf("engine invocation aborted: %w", context.Canceled)
	}}
	svc, _, journal := newService(engine, newFakeRepo())

	if _, err := svc.Run(context.Background(), acmeRequest()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(journal.entries) != 0 {
		t.Fatalf("cancelled runs are not journaled")
	}
}

func TestRunBusyIsNotJournaled(t *testing.T) {
	engine := &fakeEngine{invoke: func([]byte) (domain.EngineOutput, error) {
		return domain.EngineOutput{}, fmt.Errorf("%w: 4 engine processes already running", domain.ErrEngineBusy)
	}}
	svc, _, journal := newService(engine, newFakeRepo())

	_, err := svc.Run(context.Background(), acmeRequest())
	if !errors.Is(err, domain.ErrEngineBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if domain.StageOf(err) != domain.StageDispatching {
		t.Fatalf("stage = %q", domain.StageOf(err))
	}
	if len(journal.entries) != 0 {
		t.Fatalf("busy rejections are not journaled, got %d entries", len(journal.entries))
	}
}

func TestRunArchiveFailureDoesNotFailRequest(t *testing.T) {
	engine := &fakeEngine{invoke: stdout(`{"totalEsgScore":50,"aiAnalysis":[]}`)}
	repo := newFakeRepo()
	svc, archive, _ := newService(engine, repo)
	archive.err = errors.New("bucket gone")

	if _, err := svc.Run(context.Background(), acmeRequest()); err != nil {
		t.Fatalf("archive failure must not fail the run: %v", err)
	}
	if repo.count() != 1 {
		t.Fatalf("report should still be stored")
	}
}

func TestRunConcurrentRequestsStayIsolated(t *testing.T) {
	engine := &fakeEngine{invoke: func(input []byte) (domain.EngineOutput, error) {
		var in struct {
			Revenue float64 `json:"revenue"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return domain.EngineOutput{}, err
		}
		time.Sleep(time.Millisecond)
		return domain.EngineOutput{Stdout: []byte(fmt.Sprintf(`{"totalEsgScore":%g,"aiAnalysis":[]}`, in.Revenue))}, nil
	}}
	repo := newFakeRepo()
	svc, _, _ := newService(engine, repo)

	const n = 32
	var wg sync.WaitGroup
	results := make([]*domain.Report, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := domain.NewAnalysisRequest(fmt.Sprintf("Company %d", i), "Retail", []byte(fmt.Sprintf(`{"revenue":%d}`, i)))
			results[i], errs[i] = svc.Run(context.Background(), req)
		}(i)
	}
	wg.Wait()

	seen := map[domain.ReportID]bool{}
	for i, rep := range results {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if seen[rep.ID] {
			t.Fatalf("duplicate report id %s", rep.ID)
		}
		seen[rep.ID] = true
		if rep.CompanyName != fmt.Sprintf("Company %d", i) {
			t.Fatalf("report %d belongs to %q", i, rep.CompanyName)
		}
		if string(rep.InputMetrics) != fmt.Sprintf(`{"revenue":%d}`, i) {
			t.Fatalf("report %d has metrics %s", i, rep.InputMetrics)
		}
		if *rep.TotalEsgScore != float64(i) {
			t.Fatalf("report %d has score %v", i, *rep.TotalEsgScore)
		}
	}
	if repo.count() != n {
		t.Fatalf("expected %d reports, got %d", n, repo.count())
	}
}

func TestSetPolicyAppliesToNextRun(t *testing.T) {
	engine := &fakeEngine{invoke: stdout(`{"totalEsgScore":1,"aiAnalysis":[]}`)}
	svc, _, _ := newService(engine, newFakeRepo())
	req := domain.NewAnalysisRequest("Acme", "Retail", []byte(`{"scope3_tco2e":10}`))

	if _, err := svc.Run(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown key rejected, got %v", err)
	}
	svc.SetPolicy(domain.NewMetricPolicy(true, false, []string{"scope3_tco2e"}))
	if _, err := svc.Run(context.Background(), req); err != nil {
		t.Fatalf("run after policy change: %v", err)
	}
}
