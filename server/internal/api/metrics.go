package api

import (
	"net/http"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// metrics holds the gateway's operation counters. Gauge-style values (cache
// size, job counts) are read from their owners at scrape time instead of
// being tracked here.
type metrics struct {
	mu       sync.Mutex
	requests map[string]float64 // key: op + "|" + outcome
}

func newMetrics() *metrics {
	return &metrics{requests: make(map[string]float64)}
}

func (m *metrics) ok(op string)   { m.inc(op, "ok") }
func (m *metrics) fail(op string) { m.inc(op, "error") }

func (m *metrics) inc(op, outcome string) {
	m.mu.Lock()
	m.requests[op+"|"+outcome]++
	m.mu.Unlock()
}

// serveMetrics renders GET /metrics in the Prometheus text exposition format.
func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var families []*dto.MetricFamily

	h.metrics.mu.Lock()
	reqFamily := &dto.MetricFamily{
		Name: strPtr("etcbridge_requests_total"),
		Help: strPtr("Bridge operations processed, by operation and outcome."),
		Type: metricType(dto.MetricType_COUNTER),
	}
	for key, n := range h.metrics.requests {
		op, outcome := splitKey(key)
		reqFamily.Metric = append(reqFamily.Metric, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: strPtr("op"), Value: strPtr(op)},
				{Name: strPtr("outcome"), Value: strPtr(outcome)},
			},
			Counter: &dto.Counter{Value: f64Ptr(n)},
		})
	}
	h.metrics.mu.Unlock()
	families = append(families, reqFamily)

	stats := h.deps.Cache.Stats()
	families = append(families,
		gauge("etcbridge_cache_entries", "Results currently cached.", float64(stats.Entries)),
		counter("etcbridge_cache_hits_total", "Cache hits.", float64(stats.Hits)),
		counter("etcbridge_cache_misses_total", "Cache misses.", float64(stats.Misses)),
	)

	active, done, failed := h.deps.Jobs.Counts()
	jobFamily := &dto.MetricFamily{
		Name: strPtr("etcbridge_sweep_jobs"),
		Help: strPtr("Sweep jobs by state."),
		Type: metricType(dto.MetricType_GAUGE),
	}
	for _, s := range []struct {
		state string
		n     int
	}{{"active", active}, {"done", done}, {"failed", failed}} {
		jobFamily.Metric = append(jobFamily.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{Name: strPtr("state"), Value: strPtr(s.state)}},
			Gauge: &dto.Gauge{Value: f64Ptr(float64(s.n))},
		})
	}
	families = append(families, jobFamily)

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   strPtr(name),
		Help:   strPtr(help),
		Type:   metricType(dto.MetricType_GAUGE),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: f64Ptr(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   strPtr(name),
		Help:   strPtr(help),
		Type:   metricType(dto.MetricType_COUNTER),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: f64Ptr(v)}}},
	}
}

func splitKey(key string) (op, outcome string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func metricType(t dto.MetricType) *dto.MetricType { return &t }
