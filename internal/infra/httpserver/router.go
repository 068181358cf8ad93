package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appadvice "github.com/bryanwahyu/esg-analyzer/internal/application/advice"
	appreports "github.com/bryanwahyu/esg-analyzer/internal/application/reports"
	"github.com/bryanwahyu/esg-analyzer/internal/domain/advice"
	domain "github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
	"github.com/bryanwahyu/esg-analyzer/internal/middleware"
)

// maxBodyBytes caps the analyze request body.
const maxBodyBytes = 1 << 20

// Options configures the router's middleware chain.
type Options struct {
	Logger      *slog.Logger
	Metrics     *middleware.Metrics
	RateLimiter *middleware.RateLimiter // nil disables rate limiting
	APIKeys     []string
	CORSOrigins []string
	Health      map[string]middleware.HealthChecker
}

type Router struct {
	reportsSvc *appreports.Service
	adviceSvc  *appadvice.Service
	metrics    *middleware.Metrics
	log        *slog.Logger
}

func NewRouter(reportsSvc *appreports.Service, adviceSvc *appadvice.Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	r := &Router{reportsSvc: reportsSvc, adviceSvc: adviceSvc, metrics: opts.Metrics, log: opts.Logger}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware(opts.Logger))
	mux.Use(opts.Metrics.Middleware)
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler)
	mux.Get("/metrics", opts.Metrics.Handler)

	mux.Post("/esg/analyze", r.wrap(r.handleAnalyze))

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/reports", r.wrap(r.handleList))
		rt.Get("/reports/latest", r.wrap(r.handleLatest))
		rt.Get("/reports/{id}", r.wrap(r.handleGet))
		rt.Post("/reports/{id}/advice", r.wrap(r.handleAdvise))
		rt.Get("/reports/{id}/advice", r.wrap(r.handleLatestAdvice))
		rt.Get("/failures", r.wrap(r.handleFailures))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest is a malformed HTTP request, as opposed to a rejected analysis.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

type errorResponse struct {
	middleware.ErrorBody
	Stage    string   `json:"stage,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, body := r.errorFor(err)
		if status >= 500 {
			r.log.Error("request failed", "path", req.URL.Path, "status", status, "err", err)
		}
		middleware.WriteJSON(w, status, body)
	}
}

// errorFor maps an error to its status and a client-safe body. Engine
// stderr and driver messages stay in the logs.
func (r *Router) errorFor(err error) (int, errorResponse) {
	body := errorResponse{ErrorBody: middleware.ErrorBody{Success: false, Code: domain.Kind(err)}}
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		body.Stage = string(pe.Stage)
	}

	var br badRequest
	var ve *domain.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &br):
		status, body.Code, body.Error = http.StatusBadRequest, "bad_request", br.msg
	case errors.As(err, &ve):
		status, body.Error, body.Problems = http.StatusBadRequest, "invalid analysis request", ve.Problems
	case errors.Is(err, domain.ErrNotFound):
		status, body.Error = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrEngineBusy):
		status, body.Error = http.StatusServiceUnavailable, "analysis engine is busy, retry later"
	case errors.Is(err, domain.ErrEngineTimeout):
		status, body.Error = http.StatusGatewayTimeout, "analysis engine timed out"
	case errors.Is(err, domain.ErrEngineSpawn), errors.Is(err, domain.ErrEngineExit):
		status, body.Error = http.StatusBadGateway, "analysis engine failed"
	case errors.Is(err, domain.ErrDecode):
		status, body.Error = http.StatusBadGateway, "analysis engine returned an unreadable result"
	case errors.Is(err, domain.ErrPersistence):
		status, body.Error = http.StatusInternalServerError, "report could not be saved"
	case errors.Is(err, advice.ErrQuotaExceeded):
		status, body.Code, body.Error = http.StatusTooManyRequests, "ai_quota", "ai quota exceeded"
	case errors.Is(err, advice.ErrAdvisorDisabled):
		status, body.Code, body.Error = http.StatusServiceUnavailable, "ai_disabled", "ai advisor is not configured"
	default:
		body.Error = "internal error"
	}
	return status, body
}

func writeOK(w http.ResponseWriter, body any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(body)
}

type analyzeBody struct {
	CompanyName string          `json:"companyName"`
	Industry    string          `json:"industry"`
	Metrics     json.RawMessage `json:"metrics"`
}

// POST /esg/analyze
// Body: {"companyName": "...", "industry": "...", "metrics": {...}}
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return badRequest{msg: "request body too large"}
		}
		return badRequest{msg: "could not read request body"}
	}
	var body analyzeBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return badRequest{msg: "request body must be a JSON object"}
	}

	start := time.Now()
	report, err := r.reportsSvc.Run(req.Context(), domain.NewAnalysisRequest(body.CompanyName, body.Industry, body.Metrics))
	if err != nil {
		r.metrics.RecordAnalysis(domain.Kind(err), time.Since(start))
		return err
	}
	r.metrics.RecordAnalysis("ok", time.Since(start))

	return writeOK(w, map[string]any{"success": true, "report": report})
}

// GET /v1/reports?page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	res, err := r.reportsSvc.Paginate(req.Context(), middleware.ValidatePage(page), middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeOK(w, res)
}

// GET /v1/reports/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.reportsSvc.Latest(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeOK(w, list)
}

func reportID(req *http.Request) (domain.ReportID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateReportID(id); err != nil {
		return "", domain.ErrNotFound
	}
	return domain.ReportID(id), nil
}

// GET /v1/reports/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := reportID(req)
	if err != nil {
		return err
	}
	report, err := r.reportsSvc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeOK(w, report)
}

// POST /v1/reports/{id}/advice
func (r *Router) handleAdvise(w http.ResponseWriter, req *http.Request) error {
	id, err := reportID(req)
	if err != nil {
		return err
	}
	a, err := r.adviceSvc.Advise(req.Context(), id)
	if err != nil {
		return err
	}
	return writeOK(w, a)
}

// GET /v1/reports/{id}/advice
func (r *Router) handleLatestAdvice(w http.ResponseWriter, req *http.Request) error {
	id, err := reportID(req)
	if err != nil {
		return err
	}
	a, err := r.adviceSvc.Latest(req.Context(), id)
	if err != nil {
		return err
	}
	return writeOK(w, a)
}

// GET /v1/failures?limit=20
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.reportsSvc.RecentFailures(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeOK(w, list)
}
