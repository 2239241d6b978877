package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/pagination"
)

// Filter selects one page of a user's notifications. After is the keyset
// position of the previous page's last row.
type Filter struct {
	UserID     uuid.UUID
	UnreadOnly bool
	After      *pagination.Cursor
	Limit      int
}

type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	Page(ctx context.Context, filter Filter) ([]models.Notification, error)
	// MarkRead keeps an existing read_at; found is false when the user owns
	// no such notification.
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (found bool, err error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	DeleteReadBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) owned(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repository) Page(ctx context.Context, filter Filter) ([]models.Notification, error) {
	q := r.owned(ctx, filter.UserID)
	if filter.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if after := filter.After; after != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var rows []models.Notification
	err := q.Order("created_at DESC, id DESC").Limit(filter.Limit).Find(&rows).Error
	return rows, err
}

func (r *repository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	res := r.owned(ctx, userID).
		Where("id = ?", id).
		UpdateColumn("read_at", gorm.Expr("COALESCE(read_at, ?)", at))
	return res.RowsAffected > 0, res.Error
}

func (r *repository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.owned(ctx, userID).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore never removes unread rows, however old.
func (r *repository) DeleteReadBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.Where("read_at IS NOT NULL AND created_at < ?", cutoff).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
