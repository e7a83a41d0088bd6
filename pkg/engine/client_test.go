package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

func testParams() etc.ParamSet {
	return etc.ParamSet{
		Instrument:     "nircam",
		Filter:         "f115w",
		ApertureArcsec: 0.1,
		Background:     etc.BackgroundMedium,
		Groups:         6,
		Exposures:      1,
		MagAB:          25.0,
	}
}

func TestCalculate_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calculate" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req calculateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Instrument.Filter != "f115w" || req.Scene.MagAB != 25.0 {
			t.Errorf("request payload mismatch: %+v", req)
		}
		json.NewEncoder(w).Encode(etc.Result{ //nolint:errcheck
			SNR:      17.3,
			Warnings: []string{"source spectrum extrapolated beyond 5.2um"},
			Extra:    map[string]float64{"extracted_flux": 120.5},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res, err := c.Calculate(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.SNR != 17.3 {
		t.Errorf("SNR = %g, want 17.3", res.SNR)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "source spectrum extrapolated beyond 5.2um" {
		t.Errorf("warnings not forwarded verbatim: %v", res.Warnings)
	}
}

func TestCalculate_EngineValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"error": "invalid filter 'f115x' for instrument 'nircam'",
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = c.Calculate(context.Background(), testParams())
	var ee *Error
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *engine.Error", err)
	}
	if ee.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", ee.Status)
	}
	if ee.Message != "invalid filter 'f115x' for instrument 'nircam'" {
		t.Errorf("engine message altered: %q", ee.Message)
	}
}

func TestCalculate_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(etc.Result{SNR: 5}) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res, err := c.Calculate(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.SNR != 5 {
		t.Errorf("SNR = %g, want 5", res.SNR)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2", hits.Load())
	}
}

func TestCalculate_ValidationErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{Endpoint: srv.URL})
	if _, err := c.Calculate(context.Background(), testParams()); err == nil {
		t.Fatal("want error, got nil")
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1; 4xx must not be retried", hits.Load())
	}
}

func TestAuthRoundTripper_APIKey(t *testing.T) {
	t.Setenv("TEST_ENGINE_KEY", "s3cret")

	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("x-etc-key")
		json.NewEncoder(w).Encode(etc.Result{SNR: 1}) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		Endpoint: srv.URL,
		Auth:     AuthConfig{Mode: "apikey", Header: "x-etc-key", KeyEnv: "TEST_ENGINE_KEY"},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Calculate(context.Background(), testParams()); err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if gotHeader != "s3cret" {
		t.Errorf("api key header = %q, want %q", gotHeader, "s3cret")
	}
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("want error for missing endpoint")
	}
}
