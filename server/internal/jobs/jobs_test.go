package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/etcbridge/etcbridge/pkg/engine/enginetest"
	"github.com/etcbridge/etcbridge/pkg/etc"
	"github.com/etcbridge/etcbridge/server/internal/config"
)

func testSpec() Spec {
	return Spec{
		Params: etc.ParamSet{
			Instrument:     "nircam",
			Filter:         "f115w",
			ApertureArcsec: 0.1,
			Background:     etc.BackgroundMedium,
			Groups:         6,
			Exposures:      1,
		},
		MagStart:  20,
		MagStop:   25,
		MagStep:   0.5,
		TargetSNR: 10,
	}
}

func testConfig() config.SweepsConfig {
	return config.SweepsConfig{Workers: 4, MaxPoints: 100, Queue: 4}
}

// runQueued pops the job off the queue and executes it synchronously.
func runQueued(t *testing.T, m *Manager) {
	t.Helper()
	select {
	case id := <-m.queue:
		m.runJob(context.Background(), id)
	default:
		t.Fatal("no job queued")
	}
}

func TestSubmitValidation(t *testing.T) {
	m := NewManager(&enginetest.Fake{SNRAtRef: 100}, testConfig())

	t.Run("bad step", func(t *testing.T) {
		s := testSpec()
		s.MagStep = 0
		if _, err := m.Submit(s); err == nil {
			t.Fatal("want error for zero step")
		}
	})

	t.Run("inverted range", func(t *testing.T) {
		s := testSpec()
		s.MagStop = 19
		if _, err := m.Submit(s); err == nil {
			t.Fatal("want error for stop below start")
		}
	})

	t.Run("too many points", func(t *testing.T) {
		s := testSpec()
		s.MagStep = 0.01
		if _, err := m.Submit(s); err == nil {
			t.Fatal("want error for grid over the cap")
		}
	})

	t.Run("invalid params", func(t *testing.T) {
		s := testSpec()
		s.Params.Groups = 0
		if _, err := m.Submit(s); err == nil {
			t.Fatal("want error for invalid parameter set")
		}
	})
}

func TestSubmitQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Queue = 1
	m := NewManager(&enginetest.Fake{SNRAtRef: 100}, cfg)

	if _, err := m.Submit(testSpec()); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := m.Submit(testSpec()); err == nil {
		t.Fatal("want error when queue is full")
	}
	// The rejected job must not linger in the table.
	if got := len(m.List()); got != 1 {
		t.Errorf("List has %d jobs, want 1", got)
	}
}

func TestSweepCompletes(t *testing.T) {
	fake := &enginetest.Fake{SNRAtRef: 100, RefMag: 20}
	m := NewManager(fake, testConfig())

	job, err := m.Submit(testSpec())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != StatusQueued || job.Total != 11 {
		t.Fatalf("queued job = %+v", job)
	}

	runQueued(t, m)

	done, ok := m.Get(job.ID)
	if !ok {
		t.Fatal("job vanished")
	}
	if done.Status != StatusDone {
		t.Fatalf("Status = %q, error = %q", done.Status, done.Error)
	}
	if done.Completed != 11 || len(done.Points) != 11 {
		t.Errorf("Completed = %d, points = %d, want 11", done.Completed, len(done.Points))
	}
	if fake.Calls() != 11 {
		t.Errorf("engine called %d times, want 11", fake.Calls())
	}

	// Grid order is preserved regardless of worker scheduling.
	for i, pt := range done.Points {
		want := 20 + 0.5*float64(i)
		if math.Abs(pt.MagAB-want) > 1e-9 {
			t.Fatalf("point %d at mag %.3f, want %.3f", i, pt.MagAB, want)
		}
	}

	if done.Summary == nil {
		t.Fatal("finished sweep has no summary")
	}
	// The fake crosses S/N 10 exactly at mag 22.5 on this grid.
	if math.Abs(done.Summary.LimitingMag-22.5) > 1e-9 {
		t.Errorf("LimitingMag = %.6f, want 22.5", done.Summary.LimitingMag)
	}
	if done.Summary.MeanSNR <= done.Summary.MedianSNR {
		t.Errorf("exponential curve: mean %.3f should exceed median %.3f",
			done.Summary.MeanSNR, done.Summary.MedianSNR)
	}
}

func TestSweepFails(t *testing.T) {
	fake := &enginetest.Fake{Err: io.ErrUnexpectedEOF}
	m := NewManager(fake, testConfig())

	job, err := m.Submit(testSpec())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	runQueued(t, m)

	failed, _ := m.Get(job.ID)
	if failed.Status != StatusFailed || failed.Error == "" {
		t.Fatalf("job = %+v, want failed with error", failed)
	}
}

func TestDelete(t *testing.T) {
	m := NewManager(&enginetest.Fake{SNRAtRef: 100, RefMag: 20}, testConfig())

	job, err := m.Submit(testSpec())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := m.Delete(job.ID); err == nil {
		t.Fatal("queued job must not be deletable")
	}

	runQueued(t, m)
	if err := m.Delete(job.ID); err != nil {
		t.Fatalf("Delete finished job: %v", err)
	}
	if _, ok := m.Get(job.ID); ok {
		t.Error("deleted job still present")
	}
	if err := m.Delete(job.ID); err == nil {
		t.Error("want error deleting unknown job")
	}
}

func TestCounts(t *testing.T) {
	m := NewManager(&enginetest.Fake{SNRAtRef: 100, RefMag: 20}, testConfig())

	if _, err := m.Submit(testSpec()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if active, done, failed := m.Counts(); active != 1 || done != 0 || failed != 0 {
		t.Errorf("Counts = %d/%d/%d, want 1/0/0", active, done, failed)
	}

	runQueued(t, m)
	if active, done, failed := m.Counts(); active != 0 || done != 1 || failed != 0 {
		t.Errorf("Counts = %d/%d/%d, want 0/1/0", active, done, failed)
	}
}

func TestLimitingMagNoCrossing(t *testing.T) {
	points := []Point{
		{MagAB: 20, SNR: 100},
		{MagAB: 21, SNR: 40},
		{MagAB: 22, SNR: 16},
	}
	if _, ok := limitingMag(points, 200); ok {
		t.Error("target above the whole curve must yield no estimate")
	}
	if _, ok := limitingMag(points, 1); ok {
		t.Error("target below the whole curve must yield no estimate")
	}
	if mag, ok := limitingMag(points, 40); !ok || mag != 21 {
		t.Errorf("exact node: got %.3f, %v, want 21", mag, ok)
	}
}

func TestWebhookDelivery(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		received <- payload
	}))
	defer srv.Close()

	t.Setenv("ETCB_TEST_WEBHOOK", srv.URL)

	cfg := testConfig()
	cfg.Webhooks = []config.WebhookConfig{{Type: "http", URLEnv: "ETCB_TEST_WEBHOOK"}}
	m := NewManager(&enginetest.Fake{SNRAtRef: 100, RefMag: 20}, cfg)

	job, err := m.Submit(testSpec())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	runQueued(t, m)

	payload := <-received
	inner, ok := payload["job"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload = %v, want job object", payload)
	}
	if inner["id"] != job.ID || inner["status"] != StatusDone {
		t.Errorf("webhook job = %v", inner)
	}
}

func TestRenderChart(t *testing.T) {
	m := NewManager(&enginetest.Fake{SNRAtRef: 100, RefMag: 20}, testConfig())

	job, err := m.Submit(testSpec())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var buf bytes.Buffer
	queued, _ := m.Get(job.ID)
	if err := RenderChart(&buf, queued); err == nil {
		t.Fatal("want error charting an unfinished job")
	}

	runQueued(t, m)
	done, _ := m.Get(job.ID)

	buf.Reset()
	if err := RenderChart(&buf, done); err != nil {
		t.Fatalf("RenderChart: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "echarts") {
		t.Error("rendered chart does not embed echarts")
	}
	if !strings.Contains(html, "AB mag") {
		t.Error("rendered chart is missing the magnitude axis")
	}
}
