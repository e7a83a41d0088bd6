package api

import (
	"github.com/etcbridge/etcbridge/pkg/etc"
	"github.com/etcbridge/etcbridge/server/internal/cache"
	"github.com/etcbridge/etcbridge/server/internal/refdata"
)

// CalculateRequest asks for one S/N computation. Overrides are merged over
// the instrument's defaults table; keys follow the parameter JSON names.
type CalculateRequest struct {
	Instrument string         `json:"instrument"`
	Overrides  map[string]any `json:"overrides,omitempty"`
}

// SolveRequest asks for an inversion: the same parameter merge as a
// calculation plus the S/N target to reach.
type SolveRequest struct {
	Instrument string         `json:"instrument"`
	Overrides  map[string]any `json:"overrides,omitempty"`
	TargetSNR  float64        `json:"target_snr"`
}

// CalculateResponse carries one engine result and the merged parameters it
// was computed for.
type CalculateResponse struct {
	Params     etc.ParamSet `json:"params"`
	Result     *etc.Result  `json:"result"`
	DurationMS int64        `json:"duration_ms"`
}

// SolveResponse carries an inversion outcome: the solved parameter set, the
// engine result at the solution and the evaluation count the search spent.
type SolveResponse struct {
	Params     etc.ParamSet `json:"params"`
	Result     *etc.Result  `json:"result"`
	Evals      int          `json:"evals"`
	DurationMS int64        `json:"duration_ms"`

	// Pretty is the solved quantity formatted with its unit.
	Pretty string `json:"pretty"`
}

// InstrumentResponse is one instrument table entry.
type InstrumentResponse struct {
	Name     string       `json:"name"`
	Filters  []string     `json:"filters"`
	Defaults etc.ParamSet `json:"defaults"`
}

// FiltersResponse lists one instrument's filter set.
type FiltersResponse struct {
	Instrument string   `json:"instrument"`
	Filters    []string `json:"filters"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status      string `json:"status"`
	Instruments int    `json:"instruments"`
	GeneratedAt string `json:"generated_at"`
}

// DiagnosticsResponse aggregates operational state for operators.
type DiagnosticsResponse struct {
	Engine  EngineDiagnostics  `json:"engine"`
	Refdata refdata.Status     `json:"refdata"`
	Cache   cache.Stats        `json:"cache"`
	History HistoryDiagnostics `json:"history"`
	Jobs    JobsDiagnostics    `json:"jobs"`
}

// EngineDiagnostics reports reachability and TLS posture of the engine
// endpoint.
type EngineDiagnostics struct {
	Endpoint  string `json:"endpoint"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`

	// CertDaysLeft is days until the endpoint's TLS certificate expires.
	// Absent for plain HTTP endpoints or when the check fails.
	CertDaysLeft *int   `json:"cert_days_left,omitempty"`
	CertIssuer   string `json:"cert_issuer,omitempty"`
}

// HistoryDiagnostics reports the run-history backend state.
type HistoryDiagnostics struct {
	Backend string `json:"backend"`
	Runs    int    `json:"runs"`
	Error   string `json:"error,omitempty"`
}

// JobsDiagnostics reports sweep job totals.
type JobsDiagnostics struct {
	Active int `json:"active"`
	Done   int `json:"done"`
	Failed int `json:"failed"`
}

type errorResponse struct {
	Error string `json:"error"`
}
