package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/logger"
)

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingPruner struct {
	cutoffs []time.Time
	err     error
}

func (p *recordingPruner) prune(_ *gorm.DB, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, p.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}})
}

func retentionParams() RetentionParams {
	return RetentionParams{Logger: testLogger(), DB: passthroughTxRunner{}}
}

func TestRetentionJobDefaults(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		build  func(RetentionParams, Pruner) (Job, error)
		window time.Duration
	}{
		{"notification-cleanup", NewNotificationCleanupJob, 30 * 24 * time.Hour},
		{"outbox-retention", NewOutboxRetentionJob, 14 * 24 * time.Hour},
		{"outbox-dlq-retention", NewDeadLetterRetentionJob, 90 * 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &recordingPruner{}
			job, err := tc.build(retentionParams(), p.prune)
			if err != nil {
				t.Fatalf("construct: %v", err)
			}
			job.(*retentionJob).now = func() time.Time { return now }

			if job.Name() != tc.name {
				t.Fatalf("unexpected name %q", job.Name())
			}
			if err := job.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(now.Add(-tc.window)) {
				t.Fatalf("expected one cutoff at %s, got %v", now.Add(-tc.window), p.cutoffs)
			}
		})
	}
}

func TestRetentionJobCustomWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	p := &recordingPruner{}
	params := retentionParams()
	params.Retention = 48 * time.Hour
	job, err := NewOutboxRetentionJob(params, p.prune)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	job.(*retentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-48 * time.Hour); !p.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, p.cutoffs[0])
	}
}

func TestRetentionJobWrapsPruneError(t *testing.T) {
	boom := errors.New("boom")
	p := &recordingPruner{err: boom}
	job, err := NewNotificationCleanupJob(retentionParams(), p.prune)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if err := job.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped prune error, got %v", err)
	}
}

func TestRetentionJobRequiresDependencies(t *testing.T) {
	p := &recordingPruner{}
	if _, err := NewOutboxRetentionJob(retentionParams(), nil); err == nil {
		t.Fatal("expected error for missing pruner")
	}
	job, err := NewNotificationCleanupJob(RetentionParams{DB: passthroughTxRunner{}}, p.prune)
	if err == nil || job != nil {
		t.Fatalf("expected error and nil job for missing logger, got %v / %T", err, job)
	}
	if _, err := NewDeadLetterRetentionJob(RetentionParams{Logger: testLogger()}, p.prune); err == nil {
		t.Fatal("expected error for missing db")
	}
}
