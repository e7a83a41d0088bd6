package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

// Client talks to the etcbridged REST API.
type Client struct {
	base string
	key  string
	http *http.Client
}

// NewClient builds a Client for the gateway at base. An empty key disables
// the API-key header.
func NewClient(base, key string) *Client {
	return &Client{
		base: base,
		key:  key,
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// CalculateRequest mirrors the gateway's calculate payload.
type CalculateRequest struct {
	Instrument string         `json:"instrument"`
	Overrides  map[string]any `json:"overrides,omitempty"`
}

// SolveRequest mirrors the gateway's solve payload.
type SolveRequest struct {
	Instrument string         `json:"instrument"`
	Overrides  map[string]any `json:"overrides,omitempty"`
	TargetSNR  float64        `json:"target_snr"`
}

// CalculateResponse mirrors the gateway's calculate answer.
type CalculateResponse struct {
	Params     etc.ParamSet `json:"params"`
	Result     *etc.Result  `json:"result"`
	DurationMS int64        `json:"duration_ms"`
}

// SolveResponse mirrors the gateway's solve answer.
type SolveResponse struct {
	Params     etc.ParamSet `json:"params"`
	Result     *etc.Result  `json:"result"`
	Evals      int          `json:"evals"`
	DurationMS int64        `json:"duration_ms"`
	Pretty     string       `json:"pretty"`
}

// Instrument mirrors one gateway instrument table entry.
type Instrument struct {
	Name     string       `json:"name"`
	Filters  []string     `json:"filters"`
	Defaults etc.ParamSet `json:"defaults"`
}

// SweepSpec mirrors the gateway's sweep submission payload.
type SweepSpec struct {
	Params    etc.ParamSet `json:"params"`
	MagStart  float64      `json:"mag_start"`
	MagStop   float64      `json:"mag_stop"`
	MagStep   float64      `json:"mag_step"`
	TargetSNR float64      `json:"target_snr,omitempty"`
}

// SweepJob mirrors the gateway's job view.
type SweepJob struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Error     string        `json:"error,omitempty"`
	Summary   *SweepSummary `json:"summary,omitempty"`
}

// SweepSummary mirrors the gateway's sweep statistics.
type SweepSummary struct {
	MeanSNR     float64 `json:"mean_snr"`
	MedianSNR   float64 `json:"median_snr"`
	P10SNR      float64 `json:"p10_snr"`
	P90SNR      float64 `json:"p90_snr"`
	LimitingMag float64 `json:"limiting_mag,omitempty"`
}

func (c *Client) Instruments(ctx context.Context) ([]Instrument, error) {
	var out []Instrument
	return out, c.get(ctx, "/api/v1/instruments", &out)
}

func (c *Client) Filters(ctx context.Context, instrument string) ([]string, error) {
	var out struct {
		Filters []string `json:"filters"`
	}
	err := c.get(ctx, "/api/v1/instruments/"+instrument+"/filters", &out)
	return out.Filters, err
}

func (c *Client) Defaults(ctx context.Context, instrument string) (etc.ParamSet, error) {
	var out etc.ParamSet
	return out, c.get(ctx, "/api/v1/instruments/"+instrument+"/defaults", &out)
}

func (c *Client) Calculate(ctx context.Context, req CalculateRequest) (*CalculateResponse, error) {
	var out CalculateResponse
	return &out, c.post(ctx, "/api/v1/calculate", req, &out)
}

func (c *Client) SolveMagnitude(ctx context.Context, req SolveRequest) (*SolveResponse, error) {
	var out SolveResponse
	return &out, c.post(ctx, "/api/v1/solve/magnitude", req, &out)
}

func (c *Client) SolveExposures(ctx context.Context, req SolveRequest) (*SolveResponse, error) {
	var out SolveResponse
	return &out, c.post(ctx, "/api/v1/solve/exposures", req, &out)
}

func (c *Client) SubmitSweep(ctx context.Context, spec SweepSpec) (*SweepJob, error) {
	var out SweepJob
	return &out, c.post(ctx, "/api/v1/sweeps", spec, &out)
}

func (c *Client) GetSweep(ctx context.Context, id string) (*SweepJob, error) {
	var out SweepJob
	return &out, c.get(ctx, "/api/v1/sweeps/"+id, &out)
}

// --- transport ----------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("x-api-key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
