package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/etcbridge/etcbridge/pkg/calc"
	"github.com/etcbridge/etcbridge/pkg/engine"
	"github.com/etcbridge/etcbridge/pkg/etc"
	"github.com/etcbridge/etcbridge/pkg/solve"
	"github.com/etcbridge/etcbridge/server/internal/cache"
	"github.com/etcbridge/etcbridge/server/internal/history"
	"github.com/etcbridge/etcbridge/server/internal/jobs"
	"github.com/etcbridge/etcbridge/server/internal/limits"
	"github.com/etcbridge/etcbridge/server/internal/refdata"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Engine  engine.Engine
	Refdata *refdata.Set
	Limits  *limits.Checker
	History history.Store
	Cache   *cache.Cache
	Jobs    *jobs.Manager

	// EngineEndpoint is reported in diagnostics.
	EngineEndpoint string

	// HistoryBackend is reported in diagnostics: "sqlite" or "none".
	HistoryBackend string
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	deps    Deps
	mux     *http.ServeMux
	metrics *metrics
	now     func() time.Time
}

// New creates a Handler and registers all routes.
func New(deps Deps) *Handler {
	h := &Handler{
		deps:    deps,
		mux:     http.NewServeMux(),
		metrics: newMetrics(),
		now:     time.Now,
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/instruments", h.listInstruments)
	h.mux.HandleFunc("/api/v1/instruments/", h.instrumentSubtree) // {name}/filters, {name}/defaults
	h.mux.HandleFunc("/api/v1/calculate", h.calculate)
	h.mux.HandleFunc("/api/v1/solve/magnitude", h.solveMagnitude)
	h.mux.HandleFunc("/api/v1/solve/exposures", h.solveExposures)
	h.mux.HandleFunc("/api/v1/sweeps", h.sweeps)
	h.mux.HandleFunc("/api/v1/sweeps/", h.sweepSubtree) // {id}, {id}/chart
	h.mux.HandleFunc("/api/v1/history", h.history)
	h.mux.HandleFunc("/api/v1/diagnostics", h.diagnostics)
	h.mux.HandleFunc("/metrics", h.serveMetrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Instruments: len(h.deps.Refdata.Instruments()),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	})
}

// listInstruments returns GET /api/v1/instruments.
func (h *Handler) listInstruments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	instruments := h.deps.Refdata.Instruments()
	out := make([]InstrumentResponse, 0, len(instruments))
	for _, ins := range instruments {
		out = append(out, InstrumentResponse{
			Name:     ins.Name,
			Filters:  ins.Filters,
			Defaults: ins.Defaults,
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// instrumentSubtree dispatches GET /api/v1/instruments/{name}/filters and
// GET /api/v1/instruments/{name}/defaults.
func (h *Handler) instrumentSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/instruments/")
	name, sub, _ := strings.Cut(rest, "/")
	if name == "" {
		h.listInstruments(w, r)
		return
	}

	ins, err := h.deps.Refdata.Lookup(name)
	if err != nil {
		jsonErr(w, http.StatusNotFound, err.Error())
		return
	}

	switch sub {
	case "filters":
		jsonResp(w, http.StatusOK, FiltersResponse{Instrument: ins.Name, Filters: ins.Filters})
	case "defaults":
		jsonResp(w, http.StatusOK, ins.Defaults)
	default:
		jsonErr(w, http.StatusNotFound, "unknown instrument resource")
	}
}

// calculate handles POST /api/v1/calculate.
func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	params, ok := h.mergeParams(w, req.Instrument, req.Overrides, 0)
	if !ok {
		return
	}

	start := h.now()
	res, err := calc.SNR(r.Context(), h.deps.Engine, params)
	if err != nil {
		h.metrics.fail(calc.OpCalculate)
		h.writeOpError(w, err)
		return
	}
	elapsed := h.now().Sub(start)
	h.metrics.ok(calc.OpCalculate)

	h.record(r, history.Run{
		Op:         calc.OpCalculate,
		Params:     params,
		SNR:        res.SNR,
		Evals:      1,
		DurationMS: elapsed.Milliseconds(),
	})

	jsonResp(w, http.StatusOK, CalculateResponse{
		Params:     params,
		Result:     res,
		DurationMS: elapsed.Milliseconds(),
	})
}

// solveMagnitude handles POST /api/v1/solve/magnitude.
func (h *Handler) solveMagnitude(w http.ResponseWriter, r *http.Request) {
	h.solve(w, r, calc.OpSolveMagnitude)
}

// solveExposures handles POST /api/v1/solve/exposures.
func (h *Handler) solveExposures(w http.ResponseWriter, r *http.Request) {
	h.solve(w, r, calc.OpSolveExposures)
}

func (h *Handler) solve(w http.ResponseWriter, r *http.Request, op string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.TargetSNR <= 0 {
		jsonErr(w, http.StatusBadRequest, "target_snr must be positive")
		return
	}

	params, ok := h.mergeParams(w, req.Instrument, req.Overrides, req.TargetSNR)
	if !ok {
		return
	}

	start := h.now()
	var (
		sol    calc.Solution
		pretty string
		err    error
	)
	switch op {
	case calc.OpSolveMagnitude:
		sol, err = calc.MagnitudeFor(r.Context(), h.deps.Engine, params, req.TargetSNR, solve.Options{})
		if err == nil {
			pretty = etc.FormatMag(sol.Params.MagAB)
		}
	case calc.OpSolveExposures:
		sol, err = calc.ExposuresFor(r.Context(), h.deps.Engine, params, req.TargetSNR, solve.Options{})
		if err == nil {
			pretty = etc.FormatExposures(sol.Params.Exposures)
		}
	}
	if err != nil {
		h.metrics.fail(op)
		h.writeOpError(w, err)
		return
	}
	elapsed := h.now().Sub(start)
	h.metrics.ok(op)

	h.record(r, history.Run{
		Op:         op,
		Params:     sol.Params,
		TargetSNR:  req.TargetSNR,
		SNR:        sol.Result.SNR,
		Evals:      sol.Evals,
		DurationMS: elapsed.Milliseconds(),
	})

	jsonResp(w, http.StatusOK, SolveResponse{
		Params:     sol.Params,
		Result:     sol.Result,
		Evals:      sol.Evals,
		DurationMS: elapsed.Milliseconds(),
		Pretty:     pretty,
	})
}

// sweeps handles GET (list) and POST (submit) on /api/v1/sweeps.
func (h *Handler) sweeps(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, h.deps.Jobs.List())

	case http.MethodPost:
		var spec jobs.Spec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := h.deps.Limits.Check(limits.Request{Params: spec.Params, TargetSNR: spec.TargetSNR}); err != nil {
			jsonErr(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.deps.Refdata.Validate(spec.Params); err != nil {
			jsonErr(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		job, err := h.deps.Jobs.Submit(spec)
		if err != nil {
			jsonErr(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		jsonResp(w, http.StatusAccepted, job)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// sweepSubtree dispatches /api/v1/sweeps/{id} and /api/v1/sweeps/{id}/chart.
func (h *Handler) sweepSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sweeps/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		h.sweeps(w, r)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		job, ok := h.deps.Jobs.Get(id)
		if !ok {
			jsonErr(w, http.StatusNotFound, "sweep not found")
			return
		}
		jsonResp(w, http.StatusOK, job)

	case sub == "" && r.Method == http.MethodDelete:
		if err := h.deps.Jobs.Delete(id); err != nil {
			jsonErr(w, http.StatusConflict, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case sub == "chart" && r.Method == http.MethodGet:
		job, ok := h.deps.Jobs.Get(id)
		if !ok {
			jsonErr(w, http.StatusNotFound, "sweep not found")
			return
		}
		var buf bytes.Buffer
		if err := jobs.RenderChart(&buf, job); err != nil {
			jsonErr(w, http.StatusConflict, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes()) //nolint:errcheck

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// history returns GET /api/v1/history: recent runs, newest first.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	runs, err := h.deps.History.Recent(r.Context(), 50)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	jsonResp(w, http.StatusOK, runs)
}

// --- helpers ----------------------------------------------------------------

// mergeParams resolves the instrument's defaults, applies overrides, and runs
// local plus reference-data validation and the guard rails. On failure it
// writes the error response and returns ok=false.
func (h *Handler) mergeParams(w http.ResponseWriter, instrument string, overrides map[string]any, targetSNR float64) (etc.ParamSet, bool) {
	defaults, err := h.deps.Refdata.Defaults(instrument)
	if err != nil {
		jsonErr(w, http.StatusNotFound, err.Error())
		return etc.ParamSet{}, false
	}

	params, err := defaults.Apply(overrides)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return etc.ParamSet{}, false
	}
	params.Instrument = instrument

	if err := params.Validate(); err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return etc.ParamSet{}, false
	}
	if err := h.deps.Refdata.Validate(params); err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return etc.ParamSet{}, false
	}
	if err := h.deps.Limits.Check(limits.Request{Params: params, TargetSNR: targetSNR}); err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return etc.ParamSet{}, false
	}
	return params, true
}

// writeOpError maps operation failures to HTTP statuses. Engine validation
// errors keep their own message and status so callers see exactly what the
// engine said.
func (h *Handler) writeOpError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		jsonErr(w, engErr.Status, engErr.Message)
		return
	}
	switch {
	case errors.Is(err, solve.ErrNoBracket):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, solve.ErrBudget):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
	default:
		jsonErr(w, http.StatusBadGateway, err.Error())
	}
}

// record persists one finished operation; failures are non-fatal.
func (h *Handler) record(r *http.Request, run history.Run) {
	_ = h.deps.History.Record(r.Context(), run)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
