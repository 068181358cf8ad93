package middleware

import (
	"bytes"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress int64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	StartTime          time.Time

	mu       sync.Mutex
	analyses map[string]uint64 // outcome kind -> count
	// engineSeconds sums the duration of successful runs
	engineSeconds float64

	// EngineRunning reports the engines currently alive; nil means 0.
	EngineRunning func() int64
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now(), analyses: map[string]uint64{}}
}

// RecordAnalysis counts one finished pipeline run by outcome kind ("ok" on
// success).
func (m *Metrics) RecordAnalysis(kind string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[kind]++
	if kind == "ok" {
		m.engineSeconds += d.Seconds()
	}
}

// Analyses returns a copy of the per-kind counters.
func (m *Metrics) Analyses() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.analyses))
	for k, v := range m.analyses {
		out[k] = v
	}
	return out
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint64(&m.RequestsTotal, 1)
		atomic.AddInt64(&m.RequestsInProgress, 1)
		defer atomic.AddInt64(&m.RequestsInProgress, -1)

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			atomic.AddUint64(&m.RequestsSuccess, 1)
		} else {
			atomic.AddUint64(&m.RequestsFailed, 1)
		}
	})
}

func counter(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func gauge(v float64) *dto.Metric {
	return &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func family(name, help string, typ dto.MetricType, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{Name: proto.String(name), Help: proto.String(help), Type: typ.Enum(), Metric: metrics}
}

// Families snapshots the metrics as Prometheus metric families.
func (m *Metrics) Families() []*dto.MetricFamily {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var running int64
	if m.EngineRunning != nil {
		running = m.EngineRunning()
	}

	analyses := m.Analyses()
	kinds := make([]string, 0, len(analyses))
	for k := range analyses {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	byKind := make([]*dto.Metric, 0, len(kinds))
	for _, k := range kinds {
		byKind = append(byKind, counter(float64(analyses[k]),
			&dto.LabelPair{Name: proto.String("outcome"), Value: proto.String(k)}))
	}
	m.mu.Lock()
	engineSeconds := m.engineSeconds
	m.mu.Unlock()

	status := func(s string, v uint64) *dto.Metric {
		return counter(float64(v), &dto.LabelPair{Name: proto.String("result"), Value: proto.String(s)})
	}

	fams := []*dto.MetricFamily{
		family("esg_http_requests_total", "HTTP requests by result.", dto.MetricType_COUNTER,
			status("success", atomic.LoadUint64(&m.RequestsSuccess)),
			status("failed", atomic.LoadUint64(&m.RequestsFailed)),
		),
		family("esg_http_requests_in_progress", "HTTP requests being served.", dto.MetricType_GAUGE,
			gauge(float64(atomic.LoadInt64(&m.RequestsInProgress)))),
		family("esg_engine_running", "Engine processes currently running.", dto.MetricType_GAUGE,
			gauge(float64(running))),
		family("esg_engine_seconds_total", "Wall time spent in successful analyses.", dto.MetricType_COUNTER,
			counter(engineSeconds)),
		family("esg_uptime_seconds", "Seconds since process start.", dto.MetricType_GAUGE,
			gauge(time.Since(m.StartTime).Seconds())),
		family("esg_goroutines", "Number of goroutines.", dto.MetricType_GAUGE,
			gauge(float64(runtime.NumGoroutine()))),
		family("esg_memory_alloc_bytes", "Bytes of allocated heap objects.", dto.MetricType_GAUGE,
			gauge(float64(mem.Alloc))),
	}
	if len(byKind) > 0 {
		fams = append(fams, family("esg_analyses_total", "Finished analyses by outcome.", dto.MetricType_COUNTER, byKind...))
	}
	return fams
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	for _, mf := range m.Families() {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
