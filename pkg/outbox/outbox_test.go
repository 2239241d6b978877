package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return db
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := openDB(t)
	svc := NewService(NewRepository(db), nil)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	actor := &ActorRef{UserID: uuid.New(), Role: "customer"}
	txID := uuid.New()
	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   txID,
		Actor:         actor,
		Data:          map[string]int64{"amount_cents": 6000},
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, txID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	assert.Equal(t, CurrentVersion, env.Version)
	assert.Equal(t, row.ID.String(), env.EventID, "row id doubles as event id")
	assert.True(t, env.OccurredAt.Equal(fixed))
	assert.Equal(t, actor.UserID, env.Actor.UserID)
	assert.JSONEq(t, `{"amount_cents":6000}`, string(env.Data))
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	db := openDB(t)
	svc := NewService(NewRepository(db), nil)
	boom := errors.New("order update failed")

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitValidates(t *testing.T) {
	db := openDB(t)
	svc := NewService(NewRepository(db), nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Emit(ctx, nil, DomainEvent{}), ErrTxRequired)
	assert.Error(t, svc.Emit(ctx, db, DomainEvent{AggregateType: enums.AggregatePaymentTransaction, AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(ctx, db, DomainEvent{EventType: enums.EventPaymentFailed, AggregateType: enums.AggregatePaymentTransaction}))
	assert.Error(t, svc.Emit(ctx, db, DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   uuid.New(),
		Data:          make(chan int),
	}))
}

func TestDeadLetterCopiesRow(t *testing.T) {
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  9,
	}
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	entry := DeadLetter(row, enums.OutboxDLQReasonMaxAttempts, errors.New(strings.Repeat("é", 600)), at)
	assert.Equal(t, row.ID, entry.EventID)
	assert.Equal(t, 9, entry.AttemptCount)
	assert.Equal(t, time.UTC, entry.FailedAt.Location())
	require.NotNil(t, entry.ErrorMessage)
	assert.LessOrEqual(t, len(*entry.ErrorMessage), maxDeadLetterMessage)
	assert.True(t, utf8.ValidString(*entry.ErrorMessage))

	assert.Nil(t, DeadLetter(row, enums.OutboxDLQReasonNonRetryable, nil, at).ErrorMessage)
}

func TestDLQRepositoryInsertAndPrune(t *testing.T) {
	db := openDB(t)
	repo := NewDLQRepository(db)
	now := time.Now().UTC()

	long := strings.Repeat("x", 5000)
	old := models.OutboxDLQ{EventID: uuid.New(), EventType: enums.EventPaymentFailed, AggregateType: enums.AggregatePaymentTransaction,
		AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), ErrorReason: enums.OutboxDLQReasonMaxAttempts, ErrorMessage: &long, FailedAt: now.Add(-100 * 24 * time.Hour)}
	recent := models.OutboxDLQ{EventID: uuid.New(), EventType: enums.EventPaymentFailed, AggregateType: enums.AggregatePaymentTransaction,
		AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), ErrorReason: enums.OutboxDLQReasonNonRetryable, FailedAt: now}

	assert.ErrorIs(t, repo.InsertTx(nil, old), ErrTxRequired)
	require.NoError(t, repo.InsertTx(db, old))
	require.NoError(t, repo.InsertTx(db, recent))

	var stored models.OutboxDLQ
	require.NoError(t, db.Where("event_id = ?", old.EventID).First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, maxDeadLetterMessage)

	deleted, err := repo.DeleteFailedBefore(nil, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
