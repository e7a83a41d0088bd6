package etc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func defaultsFor(t *testing.T, name string) ParamSet {
	t.Helper()
	for _, inst := range Builtin() {
		if inst.Name == name {
			return inst.Defaults
		}
	}
	t.Fatalf("no builtin instrument %q", name)
	return ParamSet{}
}

func TestApply_OverridesWin(t *testing.T) {
	base := defaultsFor(t, "nircam")

	got, err := base.Apply(map[string]any{
		"filter":    "f200w",
		"mag_ab":    27.5,
		"exposures": 4,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := base
	want.Filter = "f200w"
	want.MagAB = 27.5
	want.Exposures = 4

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged params mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_DoesNotMutateDefaults(t *testing.T) {
	base := defaultsFor(t, "nircam")
	before := base

	if _, err := base.Apply(map[string]any{"mag_ab": 30.0}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if diff := cmp.Diff(before, base); diff != "" {
		t.Errorf("defaults mutated by Apply (-before +after):\n%s", diff)
	}
}

func TestApply_UnknownKey(t *testing.T) {
	base := defaultsFor(t, "nircam")
	_, err := base.Apply(map[string]any{"apreture_arcsec": 0.2})
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Apply with typo key: err = %v, want ErrUnknownKey", err)
	}
}

func TestApply_JSONNumbers(t *testing.T) {
	// JSON decoding hands every number over as float64; integer fields must
	// accept exact integral floats and reject fractional ones.
	base := defaultsFor(t, "nircam")

	got, err := base.Apply(map[string]any{"groups": float64(10)})
	if err != nil {
		t.Fatalf("Apply(groups=10.0): %v", err)
	}
	if got.Groups != 10 {
		t.Errorf("Groups = %d, want 10", got.Groups)
	}

	if _, err := base.Apply(map[string]any{"groups": 2.5}); err == nil {
		t.Error("Apply(groups=2.5): want error, got nil")
	}
}

func TestValidate(t *testing.T) {
	valid := defaultsFor(t, "nircam")

	tests := []struct {
		name    string
		mutate  func(*ParamSet)
		wantErr bool
	}{
		{"defaults are valid", func(p *ParamSet) {}, false},
		{"missing instrument", func(p *ParamSet) { p.Instrument = "" }, true},
		{"missing filter", func(p *ParamSet) { p.Filter = "" }, true},
		{"zero aperture", func(p *ParamSet) { p.ApertureArcsec = 0 }, true},
		{"negative aperture", func(p *ParamSet) { p.ApertureArcsec = -0.1 }, true},
		{"bad background", func(p *ParamSet) { p.Background = "dark" }, true},
		{"zero groups", func(p *ParamSet) { p.Groups = 0 }, true},
		{"zero exposures", func(p *ParamSet) { p.Exposures = 0 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			err := p.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestKey_Stable(t *testing.T) {
	a := defaultsFor(t, "nircam")
	b := a

	if a.Key() != b.Key() {
		t.Errorf("identical sets produced different keys: %q vs %q", a.Key(), b.Key())
	}

	b.MagAB += 0.5
	if a.Key() == b.Key() {
		t.Error("different magnitudes produced the same key")
	}
}

func TestHasFilter(t *testing.T) {
	inst := Builtin()[0]
	if !inst.HasFilter("f115w") {
		t.Errorf("%s should offer f115w", inst.Name)
	}
	if inst.HasFilter("f9999x") {
		t.Errorf("%s should not offer f9999x", inst.Name)
	}
}
