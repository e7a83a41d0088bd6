package etc

import (
	"testing"
	"time"
)

func TestFormatMag(t *testing.T) {
	if got := FormatMag(25.3141); got != "25.314 AB mag" {
		t.Errorf("FormatMag = %q", got)
	}
}

func TestFormatSNR(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{9.876, "S/N 9.88"},
		{42.0, "S/N 42.00"},
		{123.4, "S/N 123"},
	}
	for _, tc := range tests {
		if got := FormatSNR(tc.in); got != tc.want {
			t.Errorf("FormatSNR(%g) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatExposures(t *testing.T) {
	if got := FormatExposures(1); got != "1 exposure" {
		t.Errorf("FormatExposures(1) = %q", got)
	}
	if got := FormatExposures(12); got != "12 exposures" {
		t.Errorf("FormatExposures(12) = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{3200 * time.Millisecond, "3.2s"},
		{90 * time.Second, "1.5m"},
	}
	for _, tc := range tests {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
