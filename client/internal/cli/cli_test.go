package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseOverrides(t *testing.T) {
	got, err := parseOverrides([]string{
		"filter=f200w",
		"mag_ab=24.5",
		"exposures=4",
	})
	if err != nil {
		t.Fatalf("parseOverrides: %v", err)
	}
	want := map[string]any{
		"filter":    "f200w",
		"mag_ab":    24.5,
		"exposures": int64(4),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOverrides_Errors(t *testing.T) {
	if _, err := parseOverrides([]string{"no-equals"}); err == nil {
		t.Error("want error for value without =")
	}
	if _, err := parseOverrides([]string{"=value"}); err == nil {
		t.Error("want error for empty key")
	}
}

func TestParseOverrides_Empty(t *testing.T) {
	got, err := parseOverrides(nil)
	if err != nil || got != nil {
		t.Errorf("parseOverrides(nil) = %v, %v, want nil, nil", got, err)
	}
}

func TestClientCalculate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/calculate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "k" {
			t.Errorf("x-api-key = %q, want k", got)
		}

		var req CalculateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Instrument != "nircam" {
			t.Errorf("instrument = %q", req.Instrument)
		}
		// Numeric overrides must arrive as numbers.
		if _, ok := req.Overrides["mag_ab"].(float64); !ok {
			t.Errorf("mag_ab arrived as %T", req.Overrides["mag_ab"])
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"params":{"instrument":"nircam"},"result":{"snr":12.5},"duration_ms":42}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	resp, err := c.Calculate(context.Background(), CalculateRequest{
		Instrument: "nircam",
		Overrides:  map[string]any{"mag_ab": 24.5},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if resp.Result.SNR != 12.5 || resp.DurationMS != 42 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestClientErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"filter not offered by instrument"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.SolveMagnitude(context.Background(), SolveRequest{Instrument: "nircam", TargetSNR: 10})
	if err == nil {
		t.Fatal("want error for 422 response")
	}
	if !strings.Contains(err.Error(), "filter not offered") || !strings.Contains(err.Error(), "422") {
		t.Errorf("err = %v, want gateway message and status", err)
	}
}

func TestClientSweepRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sweeps":
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"id":"abc","status":"queued","total":11}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/sweeps/abc":
			fmt.Fprint(w, `{"id":"abc","status":"done","completed":11,"total":11,`+
				`"summary":{"mean_snr":20,"median_snr":15,"p10_snr":5,"p90_snr":40,"limiting_mag":24.1}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	job, err := c.SubmitSweep(context.Background(), SweepSpec{MagStart: 20, MagStop: 25, MagStep: 0.5})
	if err != nil {
		t.Fatalf("SubmitSweep: %v", err)
	}
	if job.ID != "abc" || job.Status != "queued" {
		t.Fatalf("job = %+v", job)
	}

	done, err := c.GetSweep(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetSweep: %v", err)
	}
	if done.Status != "done" || done.Summary == nil || done.Summary.LimitingMag != 24.1 {
		t.Errorf("done = %+v", done)
	}
}
