package calc

import (
	"context"
	"fmt"

	"github.com/etcbridge/etcbridge/pkg/engine"
	"github.com/etcbridge/etcbridge/pkg/etc"
	"github.com/etcbridge/etcbridge/pkg/solve"
)

// Operation names, used in run history and metrics.
const (
	OpCalculate      = "calculate"
	OpSolveMagnitude = "solve_magnitude"
	OpSolveExposures = "solve_exposures"
)

// magStep is the initial bracket step for the magnitude search, in mag.
const magStep = 1.0

// Solution is the outcome of an inversion: the accepted parameter set, the
// engine result at that point, and how many engine evaluations it took.
type Solution struct {
	// Params is the input configuration with the solved field filled in.
	Params etc.ParamSet `json:"params"`

	// Result is the engine's answer at the solution, warnings included.
	Result *etc.Result `json:"result"`

	// Evals is the number of engine evaluations the search spent.
	Evals int `json:"evals"`
}

// SNR runs one engine calculation for p.
func SNR(ctx context.Context, eng engine.Engine, p etc.ParamSet) (*etc.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res, err := eng.Calculate(ctx, p)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// MagnitudeFor finds the faintest source magnitude at which p still reaches
// target S/N, holding every other parameter fixed. The search starts from
// p.MagAB and brackets outward in 1-magnitude steps before bisecting.
func MagnitudeFor(ctx context.Context, eng engine.Engine, p etc.ParamSet, target float64, opts solve.Options) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{}, err
	}
	if target <= 0 {
		return Solution{}, fmt.Errorf("calc: target S/N must be positive, got %g", target)
	}

	results := map[float64]*etc.Result{}
	f := func(mag float64) (float64, error) {
		q := p
		q.MagAB = mag
		res, err := eng.Calculate(ctx, q)
		if err != nil {
			return 0, err
		}
		results[mag] = res
		return res.SNR, nil
	}

	r, err := solve.LastAbove(f, target, p.MagAB, magStep, opts)
	if err != nil {
		return Solution{}, fmt.Errorf("calc: solve magnitude for S/N %g: %w", target, err)
	}

	out := p
	out.MagAB = r.X
	return Solution{Params: out, Result: results[r.X], Evals: r.Evals}, nil
}

// ExposuresFor finds the smallest exposure count at which p reaches target
// S/N, holding every other parameter fixed. When a single exposure already
// suffices the answer costs exactly one engine call.
func ExposuresFor(ctx context.Context, eng engine.Engine, p etc.ParamSet, target float64, opts solve.Options) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{}, err
	}
	if target <= 0 {
		return Solution{}, fmt.Errorf("calc: target S/N must be positive, got %g", target)
	}

	results := map[int]*etc.Result{}
	f := func(x float64) (float64, error) {
		n := int(x)
		q := p
		q.Exposures = n
		res, err := eng.Calculate(ctx, q)
		if err != nil {
			return 0, err
		}
		results[n] = res
		return res.SNR, nil
	}

	r, err := solve.FirstAtLeast(f, target, opts)
	if err != nil {
		return Solution{}, fmt.Errorf("calc: solve exposures for S/N %g: %w", target, err)
	}

	out := p
	out.Exposures = r.N
	return Solution{Params: out, Result: results[r.N], Evals: r.Evals}, nil
}
