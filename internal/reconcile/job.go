// Package reconcile re-checks settled orders against their transactions and
// the append-only ledger.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/internal/payments"
	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/metrics"
)

const (
	jobName          = "settlement-reconcile"
	metricsSource    = "reconcile"
	defaultLookback  = 24 * time.Hour
	defaultBatchSize = 500
)

type orderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.Order, error)
}

type transactionSummer interface {
	SumSuccessByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type ledgerReader interface {
	FoldPaid(ctx context.Context, orderID uuid.UUID) (int64, error)
	OrdersTouchedSince(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// JobParams configure the reconcile job.
type JobParams struct {
	Logger       *logger.Logger
	Orders       orderReader
	Transactions transactionSummer
	Ledger       ledgerReader
	Metrics      *metrics.SettlementMetrics
	Lookback     time.Duration
	BatchSize    int
}

// Job walks every order touched inside the lookback window.
type Job struct {
	logg         *logger.Logger
	orders       orderReader
	transactions transactionSummer
	ledger       ledgerReader
	metrics      *metrics.SettlementMetrics
	lookback     time.Duration
	batchSize    int
	now          func() time.Time
}

// Report summarizes a single pass.
type Report struct {
	Checked      int
	Inconsistent []uuid.UUID
}

func NewJob(params JobParams) (*Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Job{
		logg:         params.Logger,
		orders:       params.Orders,
		transactions: params.Transactions,
		ledger:       params.Ledger,
		metrics:      params.Metrics,
		lookback:     lookback,
		batchSize:    batch,
		now:          time.Now,
	}, nil
}

func (j *Job) Name() string { return jobName }

// Run fails when any order is out of balance so the cron failure counter fires.
func (j *Job) Run(ctx context.Context) error {
	report, err := j.Reconcile(ctx)
	if err != nil {
		return err
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"orders_checked":      report.Checked,
		"orders_inconsistent": len(report.Inconsistent),
		"lookback":            j.lookback.String(),
	})
	if len(report.Inconsistent) > 0 {
		return pkgerrors.New(pkgerrors.CodeConsistency, fmt.Sprintf("%d orders out of balance", len(report.Inconsistent)))
	}
	j.logg.Info(logCtx, "settlement reconcile complete")
	return nil
}

// Reconcile checks each candidate order and reports the ones that disagree.
func (j *Job) Reconcile(ctx context.Context) (*Report, error) {
	since := j.now().UTC().Add(-j.lookback)
	ids, err := j.candidates(ctx, since)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		order, err := j.orders.FindByID(ctx, id)
		if err != nil {
			return report, fmt.Errorf("load order %s: %w", id, err)
		}
		report.Checked++
		if mismatch := j.check(ctx, order); mismatch != nil {
			report.Inconsistent = append(report.Inconsistent, id)
			j.record(ctx, order, mismatch)
		}
	}
	return report, nil
}

func (j *Job) candidates(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	touched, err := j.ledger.OrdersTouchedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("ledger orders since: %w", err)
	}
	updated, err := j.orders.ListUpdatedSince(ctx, since, j.batchSize)
	if err != nil {
		return nil, fmt.Errorf("orders updated since: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(touched)+len(updated))
	ids := make([]uuid.UUID, 0, len(touched)+len(updated))
	add := func(id uuid.UUID) {
		if id == uuid.Nil {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, order := range updated {
		add(order.ID)
	}
	for _, id := range touched {
		add(id)
	}
	return ids, nil
}

func (j *Job) check(ctx context.Context, order *models.Order) error {
	successSum, err := j.transactions.SumSuccessByOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum successful transactions")
	}
	if err := payments.CheckInvariant(order, successSum); err != nil {
		return err
	}
	folded, err := j.ledger.FoldPaid(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fold ledger")
	}
	if folded != order.PaidCents {
		return pkgerrors.New(pkgerrors.CodeConsistency, "ledger fold does not match paid amount").
			WithDetails(map[string]any{
				"orderId":     order.ID.String(),
				"paidCents":   order.PaidCents,
				"ledgerCents": folded,
			})
	}
	return nil
}

func (j *Job) record(ctx context.Context, order *models.Order, mismatch error) {
	if pkgerrors.CodeOf(mismatch) == pkgerrors.CodeConsistency {
		j.metrics.IncInconsistency(metricsSource)
	}
	logCtx := j.logg.WithOrderID(ctx, order.ID.String())
	j.logg.Error(logCtx, "order balance failed reconciliation", mismatch)
}
