package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/homeserve-payments/pkg/metrics"
)

type fakeLocker struct {
	busy     bool
	err      error
	taken    int
	released int
}

func (f *fakeLocker) TryLock(context.Context) (Lease, error) {
	if f.err != nil || f.busy {
		return nil, f.err
	}
	f.taken++
	return f, nil
}

func (f *fakeLocker) Release(context.Context) error {
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func newTestService(t *testing.T, registry *Registry, lock Locker, m *metrics.JobMetrics) *Service {
	t.Helper()
	s, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock, Metrics: m})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return s
}

func failures(t *testing.T, reg *prometheus.Registry, job string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "homeserve_jobs_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["job"] == job && labels["result"] == "failure" {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestTickRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &testJob{name: "settlement-reconcile"}
	failing := &testJob{name: "outbox-retention", err: errors.New("boom")}
	lock := &fakeLocker{}
	reg := prometheus.NewRegistry()
	m := metrics.NewJobMetrics(reg)
	s := newTestService(t, NewRegistry(failing, ok), lock, m)

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected each job once, got %d and %d", ok.runs, failing.runs)
	}
	if lock.taken != 1 || lock.released != 1 {
		t.Fatalf("expected one lease taken and released, got %d/%d", lock.taken, lock.released)
	}
	if got := failures(t, reg, "outbox-retention"); got != 1 {
		t.Fatalf("expected one recorded failure, got %v", got)
	}
}

func TestTickHonoursCadence(t *testing.T) {
	reconcile := &testJob{name: "settlement-reconcile"}
	cleanup := &testJob{name: "notification-cleanup"}
	registry := NewRegistry(reconcile)
	registry.RegisterEvery(cleanup, 24*time.Hour)
	s := newTestService(t, registry, &fakeLocker{}, nil)

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = s.tick(ctx)
		now = now.Add(15 * time.Minute)
	}
	if reconcile.runs != 3 || cleanup.runs != 1 {
		t.Fatalf("expected reconcile 3x and cleanup 1x, got %d and %d", reconcile.runs, cleanup.runs)
	}

	now = now.Add(24 * time.Hour)
	_ = s.tick(ctx)
	if cleanup.runs != 2 {
		t.Fatalf("expected cleanup again after a day, got %d", cleanup.runs)
	}
}

func TestTickLeaseHandling(t *testing.T) {
	job := &testJob{name: "settlement-reconcile"}

	busy := newTestService(t, NewRegistry(job), &fakeLocker{busy: true}, nil)
	if err := busy.tick(context.Background()); err != nil || job.runs != 0 {
		t.Fatalf("expected a quiet skip, got err=%v runs=%d", err, job.runs)
	}

	broken := newTestService(t, NewRegistry(job), &fakeLocker{err: errors.New("redis down")}, nil)
	if err := broken.tick(context.Background()); err == nil || job.runs != 0 {
		t.Fatalf("expected lock error without running, got err=%v runs=%d", err, job.runs)
	}

	// nothing due means no round trip to the lock
	registry := NewRegistry()
	registry.RegisterEvery(&testJob{name: "daily"}, 24*time.Hour)
	lock := &fakeLocker{}
	idle := newTestService(t, registry, lock, nil)
	_ = idle.tick(context.Background())
	_ = idle.tick(context.Background())
	if lock.taken != 1 {
		t.Fatalf("expected one lease, got %d", lock.taken)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "settlement-reconcile"}
	s := newTestService(t, NewRegistry(job), &fakeLocker{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the immediate tick to run, got %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error for missing lock")
	}
}
