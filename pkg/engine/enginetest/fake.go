// Package enginetest provides a synthetic in-process Engine for tests.
//
// The fake's response is an arbitrary configurable curve, not an instrument
// model: tests only need a monotone, deterministic S/N surface to exercise
// merging, caching and inversion logic.
package enginetest

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

// Fake is a deterministic Engine implementation. Its S/N response scales
// like a point-source measurement: down by 10^0.4 per magnitude, up with
// the square root of the exposure count.
//
// Fake is safe for concurrent use.
type Fake struct {
	// SNRAtRef is the single-exposure S/N at magnitude RefMag. Default 100.
	SNRAtRef float64

	// RefMag is the reference magnitude. Default 20.
	RefMag float64

	// Filters, when non-nil, restricts accepted filter names; any other
	// filter is rejected the way the real engine rejects one.
	Filters map[string]bool

	// Warnings is appended to every result, mimicking engine notices such
	// as an extrapolated source spectrum.
	Warnings []string

	// Err, when set, is returned from every call.
	Err error

	mu    sync.Mutex
	calls int
}

// Calculate implements engine.Engine.
func (f *Fake) Calculate(_ context.Context, p etc.ParamSet) (*etc.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if f.Filters != nil && !f.Filters[p.Filter] {
		return nil, fmt.Errorf("invalid filter %q for instrument %q", p.Filter, p.Instrument)
	}

	snrRef := f.SNRAtRef
	if snrRef == 0 {
		snrRef = 100
	}
	refMag := f.RefMag
	if refMag == 0 {
		refMag = 20
	}

	snr := snrRef *
		math.Pow(10, -0.4*(p.MagAB-refMag)) *
		math.Sqrt(float64(p.Exposures))

	res := &etc.Result{
		SNR: snr,
		Extra: map[string]float64{
			"extracted_flux": snr * 10,
		},
	}
	res.Warnings = append(res.Warnings, f.Warnings...)
	return res, nil
}

// Calls returns how many times Calculate has been invoked.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// MagFor returns the magnitude at which the fake's single-exposure S/N
// equals target, the analytic answer tests compare solver output against.
func (f *Fake) MagFor(target float64, exposures int) float64 {
	snrRef := f.SNRAtRef
	if snrRef == 0 {
		snrRef = 100
	}
	refMag := f.RefMag
	if refMag == 0 {
		refMag = 20
	}
	return refMag + 2.5*math.Log10(snrRef*math.Sqrt(float64(exposures))/target)
}
