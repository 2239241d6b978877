package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

// Totals splits the ledger into money in and money back out. Both are
// non-negative; net paid is Charged minus Reversed.
type Totals struct {
	Charged  int64
	Reversed int64
}

func (t Totals) Net() int64 { return t.Charged - t.Reversed }

// Repository is append-only: rows are inserted and summed, never updated.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, event *models.LedgerEvent) error
	Totals(ctx context.Context, orderID uuid.UUID) (Totals, error)
	OrderIDsSince(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) Totals(ctx context.Context, orderID uuid.UUID) (Totals, error) {
	var row struct {
		Charged  int64
		Reversed int64
	}
	err := r.db.WithContext(ctx).Model(&models.LedgerEvent{}).Where("order_id = ?", orderID).Select(
		"COALESCE(SUM(CASE WHEN type = ? THEN amount_cents ELSE 0 END), 0) AS charged, "+
			"COALESCE(SUM(CASE WHEN type <> ? THEN amount_cents ELSE 0 END), 0) AS reversed",
		enums.LedgerEventTypeCharge, enums.LedgerEventTypeCharge,
	).Scan(&row).Error
	if err != nil {
		return Totals{}, err
	}
	return Totals{Charged: row.Charged, Reversed: row.Reversed}, nil
}

// OrderIDsSince lists orders with ledger activity at or after since.
func (r *repository) OrderIDsSince(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Where("created_at >= ?", since).
		Distinct("order_id").
		Pluck("order_id", &ids).Error
	return ids, err
}
