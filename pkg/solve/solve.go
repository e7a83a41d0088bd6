package solve

import (
	"errors"
	"fmt"
	"math"
)

// Default search bounds. Each evaluation of the objective is one engine
// call, so the budget is deliberately tight.
const (
	DefaultTol       = 0.005
	DefaultMaxEvals  = 64
	DefaultMaxExpand = 16
)

var (
	// ErrNoBracket means the target value could not be bracketed within
	// the bracket-expansion bound: the target is unreachable in the
	// searched range.
	ErrNoBracket = errors.New("solve: target not bracketed")

	// ErrBudget means the evaluation budget ran out before the solution
	// was isolated.
	ErrBudget = errors.New("solve: evaluation budget exhausted")
)

// Func is a scalar objective. Evaluations are assumed expensive; the solvers
// never call it more than Options.MaxEvals times.
type Func func(x float64) (float64, error)

// Options bound the search. Zero values select the defaults above.
type Options struct {
	// Tol is the continuous-solution tolerance: bisection stops when the
	// bracket is narrower than Tol.
	Tol float64

	// MaxEvals is the hard budget on objective evaluations.
	MaxEvals int

	// MaxExpand is the maximum number of bracket doublings during the
	// initial expansion phase.
	MaxExpand int
}

func (o Options) withDefaults() Options {
	if o.Tol <= 0 {
		o.Tol = DefaultTol
	}
	if o.MaxEvals <= 0 {
		o.MaxEvals = DefaultMaxEvals
	}
	if o.MaxExpand <= 0 {
		o.MaxExpand = DefaultMaxExpand
	}
	return o
}

// Result is a continuous solution.
type Result struct {
	// X is the solution input, guaranteed to meet the target.
	X float64

	// FX is the objective value at X.
	FX float64

	// Evals is the number of objective evaluations spent.
	Evals int
}

// IntResult is an integer solution.
type IntResult struct {
	// N is the smallest integer input meeting the target.
	N int

	// FN is the objective value at N.
	FN float64

	// Evals is the number of objective evaluations spent.
	Evals int
}

// evaluator wraps a Func with budget accounting and finiteness checks.
type evaluator struct {
	f     Func
	max   int
	evals int
}

func (e *evaluator) eval(x float64) (float64, error) {
	if e.evals >= e.max {
		return 0, fmt.Errorf("%w after %d evaluations", ErrBudget, e.evals)
	}
	e.evals++
	v, err := e.f(x)
	if err != nil {
		return 0, fmt.Errorf("solve: objective at %g: %w", x, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("solve: objective at %g is not finite", x)
	}
	return v, nil
}

// LastAbove finds the largest x at which the monotone non-increasing
// objective f still meets target, i.e. the last point on the descending
// curve with f(x) >= target.
//
// The search starts at start and expands with doublings of step: upward to
// find where f falls below the target, or downward first if f(start) is
// already below it. Once bracketed, plain bisection narrows the interval to
// opts.Tol and the passing endpoint is returned.
func LastAbove(f Func, target, start, step float64, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if step <= 0 {
		return Result{}, fmt.Errorf("solve: step must be positive, got %g", step)
	}
	e := &evaluator{f: f, max: opts.MaxEvals}

	lo := start
	flo, err := e.eval(lo)
	if err != nil {
		return Result{}, err
	}

	if flo < target {
		// Even the starting point misses the target: walk downward
		// until we find a passing input.
		d := step
		found := false
		for i := 0; i < opts.MaxExpand; i++ {
			lo = start - d
			flo, err = e.eval(lo)
			if err != nil {
				return Result{}, err
			}
			if flo >= target {
				found = true
				break
			}
			d *= 2
		}
		if !found {
			return Result{}, fmt.Errorf("%w: objective below %g everywhere in [%g, %g]",
				ErrNoBracket, target, start-ldexp(step, opts.MaxExpand-1), start)
		}
	}

	// lo passes. Expand upward until f drops below the target.
	hi := lo
	d := step
	bracketed := false
	for i := 0; i < opts.MaxExpand; i++ {
		x := lo + d
		v, err := e.eval(x)
		if err != nil {
			return Result{}, err
		}
		if v >= target {
			lo, flo = x, v
		} else {
			hi = x
			bracketed = true
			break
		}
		d *= 2
	}
	if !bracketed {
		return Result{}, fmt.Errorf("%w: objective still meets %g at %g",
			ErrNoBracket, target, lo)
	}

	// Bisect [lo, hi] with f(lo) >= target > f(hi).
	for hi-lo > opts.Tol {
		mid := lo + (hi-lo)/2
		v, err := e.eval(mid)
		if err != nil {
			return Result{}, err
		}
		if v >= target {
			lo, flo = mid, v
		} else {
			hi = mid
		}
	}

	return Result{X: lo, FX: flo, Evals: e.evals}, nil
}

// FirstAtLeast finds the smallest integer n >= 1 at which the monotone
// non-decreasing objective f reaches target.
//
// When n = 1 already suffices the answer is returned after exactly one
// evaluation. Otherwise n doubles until the target is reached
// and integer bisection isolates the minimum.
func FirstAtLeast(f Func, target float64, opts Options) (IntResult, error) {
	opts = opts.withDefaults()
	e := &evaluator{f: f, max: opts.MaxEvals}
	seen := map[int]float64{}

	evalN := func(n int) (float64, error) {
		if v, ok := seen[n]; ok {
			return v, nil
		}
		v, err := e.eval(float64(n))
		if err != nil {
			return 0, err
		}
		seen[n] = v
		return v, nil
	}

	v1, err := evalN(1)
	if err != nil {
		return IntResult{}, err
	}
	if v1 >= target {
		return IntResult{N: 1, FN: v1, Evals: e.evals}, nil
	}

	lo, hi := 1, 0
	n := 2
	for i := 0; i < opts.MaxExpand; i++ {
		v, err := evalN(n)
		if err != nil {
			return IntResult{}, err
		}
		if v >= target {
			hi = n
			break
		}
		lo = n
		n *= 2
	}
	if hi == 0 {
		return IntResult{}, fmt.Errorf("%w: objective below %g up to n=%d",
			ErrNoBracket, target, lo)
	}

	// Invariant: f(lo) < target <= f(hi).
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		v, err := evalN(mid)
		if err != nil {
			return IntResult{}, err
		}
		if v >= target {
			hi = mid
		} else {
			lo = mid
		}
	}

	return IntResult{N: hi, FN: seen[hi], Evals: e.evals}, nil
}

// ldexp is math.Ldexp on a float step: step * 2^exp.
func ldexp(step float64, exp int) float64 {
	return step * math.Pow(2, float64(exp))
}
