package etc

import (
	"errors"
	"fmt"
	"math"
)

// Background levels accepted by the engine's scene configuration.
const (
	BackgroundLow    = "low"
	BackgroundMedium = "medium"
	BackgroundHigh   = "high"
)

// Sentinel validation errors. They mirror the wording of the engine's own
// validation so callers see the same failure whether a request is rejected
// locally or by the engine.
var (
	ErrUnknownInstrument = errors.New("etc: unknown instrument")
	ErrUnknownFilter     = errors.New("etc: filter not offered by instrument")
	ErrUnknownKey        = errors.New("etc: unknown parameter key")
)

// ParamSet is one complete instrument + scene configuration for a single
// engine calculation. A ParamSet is a value type: merging overrides returns
// a new set and never mutates the defaults it was built from.
type ParamSet struct {
	// Instrument is the instrument name, e.g. "nircam" or "wfi".
	Instrument string `json:"instrument" yaml:"instrument"`

	// Filter is the bandpass filter name. It must belong to the
	// instrument's filter set.
	Filter string `json:"filter" yaml:"filter"`

	// ApertureArcsec is the photometric extraction aperture radius.
	ApertureArcsec float64 `json:"aperture_arcsec" yaml:"aperture_arcsec"`

	// Background is the sky background level: low | medium | high.
	Background string `json:"background" yaml:"background"`

	// Groups is the number of detector groups per integration.
	Groups int `json:"groups" yaml:"groups"`

	// Exposures is the number of exposures stacked into the measurement.
	Exposures int `json:"exposures" yaml:"exposures"`

	// MagAB is the point-source brightness in AB magnitudes.
	MagAB float64 `json:"mag_ab" yaml:"mag_ab"`
}

// Apply returns a copy of p with the given overrides applied. Keys follow
// the JSON field names. Unknown keys are rejected rather than silently
// ignored so a typo in a caller's override table cannot produce a plausible
// but wrong calculation.
func (p ParamSet) Apply(overrides map[string]any) (ParamSet, error) {
	out := p
	for k, v := range overrides {
		switch k {
		case "instrument":
			s, err := asString(k, v)
			if err != nil {
				return out, err
			}
			out.Instrument = s
		case "filter":
			s, err := asString(k, v)
			if err != nil {
				return out, err
			}
			out.Filter = s
		case "aperture_arcsec":
			f, err := asFloat(k, v)
			if err != nil {
				return out, err
			}
			out.ApertureArcsec = f
		case "background":
			s, err := asString(k, v)
			if err != nil {
				return out, err
			}
			out.Background = s
		case "groups":
			n, err := asInt(k, v)
			if err != nil {
				return out, err
			}
			out.Groups = n
		case "exposures":
			n, err := asInt(k, v)
			if err != nil {
				return out, err
			}
			out.Exposures = n
		case "mag_ab":
			f, err := asFloat(k, v)
			if err != nil {
				return out, err
			}
			out.MagAB = f
		default:
			return out, fmt.Errorf("%w: %q", ErrUnknownKey, k)
		}
	}
	return out, nil
}

// Validate checks structural constraints that do not require reference data.
// Filter membership is checked separately against the instrument table.
func (p ParamSet) Validate() error {
	if p.Instrument == "" {
		return fmt.Errorf("etc: instrument is required")
	}
	if p.Filter == "" {
		return fmt.Errorf("etc: filter is required")
	}
	if p.ApertureArcsec <= 0 {
		return fmt.Errorf("etc: aperture_arcsec must be positive, got %g", p.ApertureArcsec)
	}
	switch p.Background {
	case BackgroundLow, BackgroundMedium, BackgroundHigh:
	default:
		return fmt.Errorf("etc: background %q unknown: want low|medium|high", p.Background)
	}
	if p.Groups < 1 {
		return fmt.Errorf("etc: groups must be >= 1, got %d", p.Groups)
	}
	if p.Exposures < 1 {
		return fmt.Errorf("etc: exposures must be >= 1, got %d", p.Exposures)
	}
	if math.IsNaN(p.MagAB) || math.IsInf(p.MagAB, 0) {
		return fmt.Errorf("etc: mag_ab must be finite")
	}
	return nil
}

// Key returns a canonical cache key for the parameter set. Magnitude is
// rounded to 4 decimal places so that values separated by less than the
// solver tolerance share a key.
func (p ParamSet) Key() string {
	return fmt.Sprintf("%s|%s|%.3f|%s|%d|%d|%.4f",
		p.Instrument, p.Filter, p.ApertureArcsec, p.Background,
		p.Groups, p.Exposures, p.MagAB)
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("etc: parameter %q: want string, got %T", key, v)
	}
	return s, nil
}

func asFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("etc: parameter %q: want number, got %T", key, v)
}

func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		// JSON decodes every number as float64; accept exact integers.
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("etc: parameter %q: want integer, got %g", key, n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("etc: parameter %q: want integer, got %T", key, v)
}
