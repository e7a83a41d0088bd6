// Package jobs runs magnitude sweeps: batches of engine calculations over a
// magnitude grid, executed asynchronously by a worker pool. Finished sweeps
// carry summary statistics, an optional limiting-magnitude estimate and can
// be rendered as an HTML chart.
package jobs

import (
	"fmt"
	"math"
	"time"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

// Job states.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Spec describes one sweep: a fixed configuration evaluated across a
// magnitude grid from MagStart to MagStop inclusive.
type Spec struct {
	// Params is the configuration held fixed at every grid point.
	// Its MagAB field is ignored; the grid supplies the magnitude.
	Params etc.ParamSet `json:"params"`

	MagStart float64 `json:"mag_start"`
	MagStop  float64 `json:"mag_stop"`
	MagStep  float64 `json:"mag_step"`

	// TargetSNR, when positive, requests a limiting-magnitude estimate:
	// the magnitude at which the swept curve crosses this S/N.
	TargetSNR float64 `json:"target_snr,omitempty"`
}

// grid expands the spec into its magnitude values.
func (s Spec) grid() []float64 {
	var mags []float64
	for m := s.MagStart; m <= s.MagStop+1e-9; m += s.MagStep {
		mags = append(mags, m)
	}
	return mags
}

// validate checks the spec shape; the parameter set is checked separately.
func (s Spec) validate(maxPoints int) error {
	if s.MagStep <= 0 {
		return fmt.Errorf("jobs: mag_step must be positive, got %g", s.MagStep)
	}
	if s.MagStop < s.MagStart {
		return fmt.Errorf("jobs: mag_stop %g below mag_start %g", s.MagStop, s.MagStart)
	}
	if s.TargetSNR < 0 {
		return fmt.Errorf("jobs: target_snr must not be negative")
	}
	n := int(math.Floor((s.MagStop-s.MagStart)/s.MagStep)) + 1
	if n > maxPoints {
		return fmt.Errorf("jobs: sweep has %d points, cap is %d", n, maxPoints)
	}
	return nil
}

// Point is one evaluated grid position.
type Point struct {
	MagAB    float64  `json:"mag_ab"`
	SNR      float64  `json:"snr"`
	Warnings []string `json:"warnings,omitempty"`
}

// Summary aggregates a finished sweep.
type Summary struct {
	MeanSNR   float64 `json:"mean_snr"`
	MedianSNR float64 `json:"median_snr"`
	P10SNR    float64 `json:"p10_snr"`
	P90SNR    float64 `json:"p90_snr"`

	// LimitingMag is the interpolated magnitude where the curve crosses
	// TargetSNR. Zero when no target was set or the curve never crosses it.
	LimitingMag float64 `json:"limiting_mag,omitempty"`
}

// Job is one sweep with its lifecycle state. Manager owns all mutation;
// callers only ever see copies.
type Job struct {
	ID     string `json:"id"`
	Spec   Spec   `json:"spec"`
	Status string `json:"status"`

	// Completed counts evaluated grid points; Total is the grid size.
	Completed int `json:"completed"`
	Total     int `json:"total"`

	Points  []Point  `json:"points,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
	Error   string   `json:"error,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// clone returns a deep copy safe to hand to callers.
func (j *Job) clone() *Job {
	out := *j
	out.Points = append([]Point(nil), j.Points...)
	if j.Summary != nil {
		s := *j.Summary
		out.Summary = &s
	}
	return &out
}
