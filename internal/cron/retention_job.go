package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/logger"
)

const (
	notificationRetention = 30 * 24 * time.Hour
	outboxRetention       = 14 * 24 * time.Hour
	deadLetterRetention   = 90 * 24 * time.Hour
)

// Pruner deletes rows older than cutoff inside tx and returns how many went.
type Pruner func(tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionParams is shared by every cleanup job. A zero Retention picks the
// job's default window.
type RetentionParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Retention time.Duration
}

// NewNotificationCleanupJob prunes read payment notifications.
func NewNotificationCleanupJob(params RetentionParams, prune Pruner) (Job, error) {
	return newRetentionJob("notification-cleanup", notificationRetention, params, prune)
}

// NewOutboxRetentionJob removes events the relay already delivered.
// Undelivered rows are never touched.
func NewOutboxRetentionJob(params RetentionParams, prune Pruner) (Job, error) {
	return newRetentionJob("outbox-retention", outboxRetention, params, prune)
}

// NewDeadLetterRetentionJob drops dead letters old enough that nobody will
// replay them by hand.
func NewDeadLetterRetentionJob(params RetentionParams, prune Pruner) (Job, error) {
	return newRetentionJob("outbox-dlq-retention", deadLetterRetention, params, prune)
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	retention time.Duration
	prune     Pruner
	now       func() time.Time
}

func newRetentionJob(name string, fallback time.Duration, params RetentionParams, prune Pruner) (Job, error) {
	switch {
	case prune == nil:
		return nil, fmt.Errorf("%s: pruner required", name)
	case params.Logger == nil:
		return nil, fmt.Errorf("%s: logger required", name)
	case params.DB == nil:
		return nil, fmt.Errorf("%s: db runner required", name)
	}
	retention := params.Retention
	if retention <= 0 {
		retention = fallback
	}
	return &retentionJob{
		name:      name,
		logg:      params.Logger,
		db:        params.DB,
		retention: retention,
		prune:     prune,
		now:       time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.prune(tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}
