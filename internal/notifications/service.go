package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/pagination"
)

// Emitter is the sink settlement outcomes are delivered to.
type Emitter interface {
	Emit(ctx context.Context, userID uuid.UUID, notificationType enums.NotificationType, message string) error
}

type Service interface {
	Emitter
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

type ListResult struct {
	Items  []models.Notification
	Cursor string
}

var titles = map[enums.NotificationType]string{
	enums.NotificationTypePaymentReceived:          "Payment received",
	enums.NotificationTypePaymentFailed:            "Payment failed",
	enums.NotificationTypePaymentRefunded:          "Payment refunded",
	enums.NotificationTypePaymentPartiallyRefunded: "Payment partially refunded",
}

var errUserRequired = pkgerrors.New(pkgerrors.CodeValidation, "user id required")

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) Emit(ctx context.Context, userID uuid.UUID, notificationType enums.NotificationType, message string) error {
	message = strings.TrimSpace(message)
	switch {
	case userID == uuid.Nil:
		return errUserRequired
	case !notificationType.IsValid():
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown notification type %q", notificationType)
	case message == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "message required")
	}

	err := s.repo.Create(ctx, &models.Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   titles[notificationType],
		Message: message,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store notification")
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, errUserRequired
	}
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.Page(ctx, Filter{
		UserID:     params.UserID,
		UnreadOnly: params.UnreadOnly,
		After:      after,
		Limit:      pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	items, next := pagination.Trim(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return errUserRequired
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	found, err := s.repo.MarkRead(ctx, userID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, errUserRequired
	}
	n, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return n, nil
}
