package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

type failingRepository struct {
	Repository
	err error
}

func (f failingRepository) WithTx(*gorm.DB) Repository { return f }

func (f failingRepository) Append(context.Context, *models.LedgerEvent) error { return f.err }

func newSQLiteService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.LedgerEvent{}))
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func TestRecordEventPersists(t *testing.T) {
	svc, db := newSQLiteService(t)

	actor := uuid.New()
	metadata := json.RawMessage(`{"provider":"square"}`)
	input := RecordLedgerEventInput{
		OrderID:       uuid.New(),
		TransactionID: uuid.New(),
		ActorUserID:   &actor,
		Type:          enums.LedgerEventTypeCharge,
		AmountCents:   10000,
		Metadata:      metadata,
	}

	got, err := svc.RecordEvent(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("RecordEvent error: %v", err)
	}
	if got.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}

	var stored models.LedgerEvent
	if err := db.First(&stored, "id = ?", got.ID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if stored.OrderID != input.OrderID || stored.TransactionID != input.TransactionID || stored.AmountCents != 10000 {
		t.Fatalf("unexpected ledger event data: %+v", stored)
	}
	if stored.ActorUserID == nil || *stored.ActorUserID != actor {
		t.Fatalf("missing actor: %+v", stored)
	}
	if string(stored.Metadata) != string(metadata) {
		t.Fatalf("metadata mismatch: %s", stored.Metadata)
	}
}

func TestRecordEventInsideCallerTx(t *testing.T) {
	svc, db := newSQLiteService(t)
	orderID := uuid.New()
	boom := errors.New("order update failed")

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.RecordEvent(context.Background(), tx, RecordLedgerEventInput{
			OrderID:       orderID,
			TransactionID: uuid.New(),
			Type:          enums.LedgerEventTypeCharge,
			AmountCents:   500,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	paid, err := svc.FoldPaid(context.Background(), orderID)
	if err != nil || paid != 0 {
		t.Fatalf("rolled back charge must not count: paid=%d err=%v", paid, err)
	}
}

func TestRecordEventValidation(t *testing.T) {
	svc, err := NewService(failingRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := map[string]RecordLedgerEventInput{
		"missing order id":       {TransactionID: uuid.New(), Type: enums.LedgerEventTypeCharge, AmountCents: 1},
		"missing transaction id": {OrderID: uuid.New(), Type: enums.LedgerEventTypeCharge, AmountCents: 1},
		"invalid type":           {OrderID: uuid.New(), TransactionID: uuid.New(), Type: "not_real", AmountCents: 1},
		"zero amount":            {OrderID: uuid.New(), TransactionID: uuid.New(), Type: enums.LedgerEventTypeRefund},
		"negative amount":        {OrderID: uuid.New(), TransactionID: uuid.New(), Type: enums.LedgerEventTypeRefund, AmountCents: -5},
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.RecordEvent(context.Background(), nil, input); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}

	if _, err := NewService(nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}

func TestRecordEventRepoError(t *testing.T) {
	expectedErr := errors.New("boom")
	svc, err := NewService(failingRepository{err: expectedErr})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	_, err = svc.RecordEvent(context.Background(), nil, RecordLedgerEventInput{
		OrderID:       uuid.New(),
		TransactionID: uuid.New(),
		Type:          enums.LedgerEventTypeCharge,
		AmountCents:   500,
	})
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error, got %v", err)
	}
}

func TestFoldPaid(t *testing.T) {
	svc, _ := newSQLiteService(t)

	ctx := context.Background()
	orderID := uuid.New()
	first := uuid.New()
	second := uuid.New()
	record := func(order, txID uuid.UUID, typ enums.LedgerEventType, amount int64) {
		t.Helper()
		if _, err := svc.RecordEvent(ctx, nil, RecordLedgerEventInput{
			OrderID:       order,
			TransactionID: txID,
			Type:          typ,
			AmountCents:   amount,
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	record(orderID, first, enums.LedgerEventTypeCharge, 10000)
	record(orderID, second, enums.LedgerEventTypeCharge, 2500)
	record(orderID, first, enums.LedgerEventTypePartialRefund, 3000)
	record(orderID, second, enums.LedgerEventTypeRefund, 2500)
	// another order's activity stays out of the fold
	record(uuid.New(), uuid.New(), enums.LedgerEventTypeCharge, 999)

	paid, err := svc.FoldPaid(ctx, orderID)
	if err != nil {
		t.Fatalf("FoldPaid: %v", err)
	}
	if paid != 7000 {
		t.Fatalf("expected folded paid 7000, got %d", paid)
	}

	if paid, err := svc.FoldPaid(ctx, uuid.New()); err != nil || paid != 0 {
		t.Fatalf("order without ledger should fold to 0, got %d (%v)", paid, err)
	}
	if _, err := svc.FoldPaid(ctx, uuid.Nil); !errors.Is(err, ErrOrderRequired) {
		t.Fatalf("expected ErrOrderRequired, got %v", err)
	}
}

func TestOrdersTouchedSince(t *testing.T) {
	svc, db := newSQLiteService(t)
	ctx := context.Background()

	recent, stale := uuid.New(), uuid.New()
	for _, order := range []uuid.UUID{recent, recent, stale} {
		if _, err := svc.RecordEvent(ctx, nil, RecordLedgerEventInput{
			OrderID: order, TransactionID: uuid.New(), Type: enums.LedgerEventTypeCharge, AmountCents: 100,
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := db.Model(&models.LedgerEvent{}).Where("order_id = ?", stale).Update("created_at", old).Error; err != nil {
		t.Fatalf("age event: %v", err)
	}

	ids, err := svc.OrdersTouchedSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("OrdersTouchedSince: %v", err)
	}
	if len(ids) != 1 || ids[0] != recent {
		t.Fatalf("expected only the recent order once, got %v", ids)
	}
}
