package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/interp"

	"github.com/etcbridge/etcbridge/pkg/engine"
	"github.com/etcbridge/etcbridge/server/internal/config"
)

// Manager owns the sweep queue and the job table.
type Manager struct {
	eng engine.Engine
	cfg config.SweepsConfig

	mu    sync.RWMutex
	table map[string]*Job

	queue chan string
	now   func() time.Time

	httpClient *http.Client
}

// NewManager builds a Manager executing sweeps against eng. Run must be
// started for queued jobs to make progress.
func NewManager(eng engine.Engine, cfg config.SweepsConfig) *Manager {
	return &Manager{
		eng:        eng,
		cfg:        cfg,
		table:      make(map[string]*Job),
		queue:      make(chan string, cfg.Queue),
		now:        time.Now,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Submit validates the spec, assigns an ID and queues the sweep.
func (m *Manager) Submit(spec Spec) (*Job, error) {
	if err := spec.validate(m.cfg.MaxPoints); err != nil {
		return nil, err
	}
	// Seed a valid magnitude so the full set passes parameter validation.
	p := spec.Params
	p.MagAB = spec.MagStart
	if err := p.Validate(); err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.NewString(),
		Spec:      spec,
		Status:    StatusQueued,
		Total:     len(spec.grid()),
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.table[job.ID] = job
	m.mu.Unlock()

	select {
	case m.queue <- job.ID:
	default:
		m.mu.Lock()
		delete(m.table, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("jobs: queue full (%d pending)", m.cfg.Queue)
	}

	slog.Info("jobs: sweep queued", "id", job.ID, "points", job.Total)
	return job.clone(), nil
}

// Get returns a copy of the job with the given ID.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.table[id]
	if !ok {
		return nil, false
	}
	return j.clone(), true
}

// List returns copies of all jobs, newest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Job, 0, len(m.table))
	for _, j := range m.table {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// Delete removes a finished or failed job from the table. Running and queued
// jobs cannot be deleted.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.table[id]
	if !ok {
		return fmt.Errorf("jobs: no job %q", id)
	}
	if j.Status == StatusQueued || j.Status == StatusRunning {
		return fmt.Errorf("jobs: job %q is %s", id, j.Status)
	}
	delete(m.table, id)
	return nil
}

// Counts returns (queued+running, done, failed) job totals for metrics.
func (m *Manager) Counts() (active, done, failed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.table {
		switch j.Status {
		case StatusDone:
			done++
		case StatusFailed:
			failed++
		default:
			active++
		}
	}
	return active, done, failed
}

// Run consumes the queue until ctx is cancelled. One sweep runs at a time;
// within a sweep, grid points are evaluated by cfg.Workers goroutines.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.runJob(ctx, id)
		}
	}
}

func (m *Manager) runJob(ctx context.Context, id string) {
	m.mu.Lock()
	job, ok := m.table[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.Status = StatusRunning
	spec := job.Spec
	m.mu.Unlock()

	start := m.now()
	mags := spec.grid()
	points := make([]Point, len(mags))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, mag := range mags {
		i, mag := i, mag
		g.Go(func() error {
			p := spec.Params
			p.MagAB = mag
			res, err := m.eng.Calculate(gctx, p)
			if err != nil {
				return fmt.Errorf("mag %.3f: %w", mag, err)
			}
			points[i] = Point{MagAB: mag, SNR: res.SNR, Warnings: res.Warnings}

			m.mu.Lock()
			job.Completed++
			m.mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	m.mu.Lock()
	job.FinishedAt = m.now()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		m.mu.Unlock()
		slog.Error("jobs: sweep failed", "id", id, "err", err)
		m.deliver(job.clone())
		return
	}
	job.Points = points
	job.Summary = summarize(points, spec.TargetSNR)
	job.Status = StatusDone
	snapshot := job.clone()
	m.mu.Unlock()

	slog.Info("jobs: sweep done",
		"id", id,
		"points", len(points),
		"elapsed", m.now().Sub(start).Round(time.Millisecond),
	)
	m.deliver(snapshot)
}

// summarize computes sweep statistics and, when a target is set, the
// interpolated limiting magnitude.
func summarize(points []Point, targetSNR float64) *Summary {
	snrs := make([]float64, len(points))
	for i, pt := range points {
		snrs[i] = pt.SNR
	}

	mean, _ := stats.Mean(snrs)
	median, _ := stats.Median(snrs)
	p10, _ := stats.Percentile(snrs, 10)
	p90, _ := stats.Percentile(snrs, 90)

	s := &Summary{MeanSNR: mean, MedianSNR: median, P10SNR: p10, P90SNR: p90}
	if targetSNR > 0 {
		if mag, ok := limitingMag(points, targetSNR); ok {
			s.LimitingMag = mag
		}
	}
	return s
}

// limitingMag interpolates the magnitude at which the swept S/N curve
// crosses target. The curve must be strictly decreasing in magnitude and
// must bracket the target; otherwise no estimate is made.
func limitingMag(points []Point, target float64) (float64, bool) {
	// Reverse so S/N ascends, as the interpolator requires.
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for i := len(points) - 1; i >= 0; i-- {
		xs = append(xs, points[i].SNR)
		ys = append(ys, points[i].MagAB)
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return 0, false
		}
	}
	if len(xs) < 2 || target < xs[0] || target > xs[len(xs)-1] {
		return 0, false
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return 0, false
	}
	return pl.Predict(target), true
}
