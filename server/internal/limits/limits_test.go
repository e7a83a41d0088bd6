package limits

import (
	"errors"
	"testing"

	"github.com/etcbridge/etcbridge/pkg/etc"
	"github.com/etcbridge/etcbridge/server/internal/config"
)

func baseRequest() Request {
	return Request{
		Params: etc.ParamSet{
			Instrument:     "nircam",
			Filter:         "f115w",
			ApertureArcsec: 0.1,
			Background:     etc.BackgroundMedium,
			Groups:         6,
			Exposures:      1,
			MagAB:          25,
		},
		TargetSNR: 10,
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name string
		rule config.Rule
	}{
		{"malformed", config.Rule{Name: "r", Condition: "exposures>10"}},
		{"unknown field", config.Rule{Name: "r", Condition: "snr > 10"}},
		{"unknown op", config.Rule{Name: "r", Condition: "exposures != 10"}},
		{"bad threshold", config.Rule{Name: "r", Condition: "exposures > many"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compile([]config.Rule{tc.rule}); err == nil {
				t.Fatal("want compile error, got nil")
			}
		})
	}
}

func TestCheck(t *testing.T) {
	c, err := Compile([]config.Rule{
		{Name: "exposure-cap", Condition: "exposures > 10000", Message: "too many exposures"},
		{Name: "faint-limit", Condition: "mag_ab > 35"},
		{Name: "snr-cap", Condition: "target_snr > 1000"},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if err := c.Check(baseRequest()); err != nil {
		t.Errorf("Check(ok) = %v", err)
	}

	t.Run("exposures fires with message", func(t *testing.T) {
		req := baseRequest()
		req.Params.Exposures = 20000

		err := c.Check(req)
		var v *Violation
		if !errors.As(err, &v) {
			t.Fatalf("err = %v, want *Violation", err)
		}
		if v.Rule != "exposure-cap" || v.Message != "too many exposures" {
			t.Errorf("Violation = %+v", v)
		}
		if v.Value != 20000 {
			t.Errorf("Value = %g, want 20000", v.Value)
		}
	})

	t.Run("magnitude fires", func(t *testing.T) {
		req := baseRequest()
		req.Params.MagAB = 36

		var v *Violation
		if !errors.As(c.Check(req), &v) || v.Rule != "faint-limit" {
			t.Fatalf("want faint-limit violation, got %v", v)
		}
	})

	t.Run("target snr fires", func(t *testing.T) {
		req := baseRequest()
		req.TargetSNR = 5000

		var v *Violation
		if !errors.As(c.Check(req), &v) || v.Rule != "snr-cap" {
			t.Fatalf("want snr-cap violation, got %v", v)
		}
	})

	t.Run("boundary does not fire", func(t *testing.T) {
		req := baseRequest()
		req.Params.Exposures = 10000
		if err := c.Check(req); err != nil {
			t.Errorf("Check at boundary = %v", err)
		}
	})
}

func TestEmptyRuleSet(t *testing.T) {
	c, err := Compile(nil)
	if err != nil {
		t.Fatalf("Compile(nil): %v", err)
	}
	if err := c.Check(baseRequest()); err != nil {
		t.Errorf("Check with no rules = %v", err)
	}
}
