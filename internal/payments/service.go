package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/internal/ledger"
	"github.com/angelmondragon/homeserve-payments/internal/orders"
	"github.com/angelmondragon/homeserve-payments/internal/payments/providers"
	"github.com/angelmondragon/homeserve-payments/internal/receipts"
	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/metrics"
	"github.com/angelmondragon/homeserve-payments/pkg/money"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/payloads"
	"github.com/angelmondragon/homeserve-payments/pkg/pagination"
)

const (
	defaultProviderTimeout = 15 * time.Second

	noteProviderTimeout = "provider timeout"
	noteOrderChanged    = "order changed during processing"

	opPay           = "pay"
	opRetry         = "retry"
	opRefund        = "refund"
	opRefundPartial = "refund_partial"

	inconsistencySource = "settlement"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type providerResolver interface {
	Resolve(raw string) (providers.Provider, error)
}

type receiptRenderer interface {
	Render(input receipts.Input) ([]byte, error)
}

// Service settles payments against orders.
type Service interface {
	Pay(ctx context.Context, input PayInput) (*PayResult, error)
	Refund(ctx context.Context, input RefundInput) (bool, error)
	RefundPartial(ctx context.Context, input PartialRefundInput) (bool, error)
	Retry(ctx context.Context, input RetryInput) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
	Status(ctx context.Context, orderID uuid.UUID) (*BalanceSnapshot, error)
	Receipt(ctx context.Context, transactionID uuid.UUID) ([]byte, bool, error)
}

// ServiceParams wires the settlement service.
type ServiceParams struct {
	TxRunner        txRunner
	Orders          orders.Repository
	Transactions    Repository
	Ledger          ledger.Service
	Outbox          outboxPublisher
	Providers       providerResolver
	Locker          OrderLocker
	Receipts        receiptRenderer
	Metrics         *metrics.SettlementMetrics
	Logger          *logger.Logger
	ProviderTimeout time.Duration
	Now             func() time.Time
}

type service struct {
	tx              txRunner
	orders          orders.Repository
	transactions    Repository
	ledger          ledger.Service
	outbox          outboxPublisher
	providers       providerResolver
	locker          OrderLocker
	receipts        receiptRenderer
	metrics         *metrics.SettlementMetrics
	logg            *logger.Logger
	providerTimeout time.Duration
	now             func() time.Time
}

// NewService validates the collaborators and returns the settlement service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
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
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Receipts == nil {
		return nil, fmt.Errorf("receipt renderer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	locker := params.Locker
	if locker == nil {
		locker = NewLocalOrderLocker()
	}
	timeout := params.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:              params.TxRunner,
		orders:          params.Orders,
		transactions:    params.Transactions,
		ledger:          params.Ledger,
		outbox:          params.Outbox,
		providers:       params.Providers,
		locker:          locker,
		receipts:        params.Receipts,
		metrics:         params.Metrics,
		logg:            params.Logger,
		providerTimeout: timeout,
		now:             now,
	}, nil
}

type chargeRequest struct {
	orderID      uuid.UUID
	amountCents  int64
	// provider is resolved from providerType once the order checks pass
	provider     providers.Provider
	providerType string
	sourceToken  string
	actor        *outbox.ActorRef
	retryOf      *uuid.UUID
}

func (s *service) Pay(ctx context.Context, input PayInput) (*PayResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AmountCents <= 0 {
		return nil, invalidAmount(input.AmountCents, 0)
	}
	return s.settle(ctx, opPay, chargeRequest{
		orderID:      input.OrderID,
		amountCents:  input.AmountCents,
		providerType: input.ProviderType,
		sourceToken:  input.SourceToken,
		actor:        input.Actor,
	})
}

func (s *service) Retry(ctx context.Context, input RetryInput) (bool, error) {
	if input.TransactionID == uuid.Nil {
		return false, nil
	}
	original, err := s.transactions.FindByID(ctx, input.TransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncOperation(opRetry, metrics.OutcomeNoop)
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if original.Status == enums.TransactionStatusSuccess || original.Status == enums.TransactionStatusRefunded {
		s.metrics.IncOperation(opRetry, metrics.OutcomeNoop)
		return false, nil
	}
	provider, err := s.providers.Resolve(original.PaymentMethod)
	if err != nil {
		s.logg.Warn(s.logg.WithTransactionID(ctx, original.ID.String()), "retry skipped: stored provider is not registered")
		s.metrics.IncOperation(opRetry, metrics.OutcomeNoop)
		return false, nil
	}

	retryOf := original.ID
	result, err := s.settle(ctx, opRetry, chargeRequest{
		orderID:     original.OrderID,
		amountCents: original.AmountCents,
		provider:    provider,
		actor:       input.Actor,
		retryOf:     &retryOf,
	})
	if err != nil {
		return false, err
	}
	return result.Success, nil
}

// settle runs one provider attempt for an order and records its outcome.
func (s *service) settle(ctx context.Context, operation string, req chargeRequest) (*PayResult, error) {
	ctx = s.logg.WithOrderID(ctx, req.orderID.String())

	unlock, err := s.locker.Lock(ctx, req.orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.orders.FindByID(ctx, req.orderID)
	if err != nil {
		return nil, orderLoadError(err)
	}
	if err := checkChargeable(order, req.amountCents); err != nil {
		return nil, err
	}
	if req.provider == nil {
		if req.provider, err = s.providers.Resolve(req.providerType); err != nil {
			return nil, err
		}
	}

	txnID := uuid.New()
	result := s.callProvider(ctx, req, order.Currency, txnID)

	// the provider may have moved money; the outcome is recorded even if the
	// caller has gone away
	dbCtx := context.WithoutCancel(ctx)

	var out *PayResult
	err = s.tx.WithTx(dbCtx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		txnRepo := s.transactions.WithTx(tx)

		locked, err := ordersRepo.FindByIDForUpdate(dbCtx, req.orderID)
		if err != nil {
			return orderLoadError(err)
		}

		next := enums.TransactionStatusFailed
		if result.Success {
			if err := checkChargeable(locked, req.amountCents); err != nil {
				s.logg.Warn(dbCtx, "order changed while provider call was in flight; recording charge as failed")
				result = providers.Result{TransactionID: result.TransactionID, ErrorMessage: stringPtr(noteOrderChanged)}
			} else {
				next = enums.TransactionStatusSuccess
			}
		}

		now := s.now().UTC()
		txn := &models.PaymentTransaction{
			ID:                    txnID,
			OrderID:               req.orderID,
			AmountCents:           req.amountCents,
			PaymentMethod:         string(req.provider.Type()),
			Status:                enums.TransactionStatusPending,
			ProviderTransactionID: result.TransactionID,
			RetryOfTransactionID:  req.retryOf,
			TransactionDate:       now,
		}
		if err := transition(txn, next); err != nil {
			return err
		}
		txn.Notes = appendNote("", now, describeResult(req.provider.Type(), result))
		if err := txnRepo.Insert(dbCtx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment transaction")
		}

		eventType := enums.EventPaymentFailed
		reason := ""
		if result.ErrorMessage != nil {
			reason = *result.ErrorMessage
		}
		if txn.Status == enums.TransactionStatusSuccess {
			eventType = enums.EventPaymentSucceeded
			if err := s.applyAndRecord(dbCtx, tx, locked, txn, req.amountCents, enums.LedgerEventTypeCharge, req.actor); err != nil {
				return err
			}
		}

		if err := s.emit(dbCtx, tx, eventType, txn, locked, req.actor, reason, 0); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
		}
		out = &PayResult{Success: txn.Status == enums.TransactionStatusSuccess, Transaction: txn}
		return nil
	})
	if err != nil {
		s.metrics.IncOperation(operation, metrics.OutcomeError)
		s.logg.Error(dbCtx, "settlement failed", err)
		return nil, err
	}

	outcome := metrics.OutcomeDeclined
	if out.Success {
		outcome = metrics.OutcomeSuccess
	}
	s.metrics.IncOperation(operation, outcome)
	s.logg.Info(s.logg.WithFields(dbCtx, map[string]any{
		"transaction_id": out.Transaction.ID.String(),
		"provider":       out.Transaction.PaymentMethod,
		"status":         string(out.Transaction.Status),
		"amount_cents":   out.Transaction.AmountCents,
	}), "payment attempt recorded")
	return out, nil
}

func (s *service) callProvider(ctx context.Context, req chargeRequest, currency enums.Currency, txnID uuid.UUID) providers.Result {
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	providerType := string(req.provider.Type())
	started := time.Now()
	result, err := req.provider.ProcessPayment(callCtx, providers.PaymentRequest{
		OrderID:        req.orderID,
		AmountCents:    req.amountCents,
		Currency:       currency,
		IdempotencyKey: txnID.String(),
		SourceToken:    req.sourceToken,
	})
	elapsed := time.Since(started)

	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)):
		s.metrics.ObserveProvider(providerType, metrics.OutcomeTimeout, elapsed)
		s.logg.Warn(s.logg.WithField(ctx, "provider", providerType), "payment provider timed out")
		return providers.Declined(noteProviderTimeout)
	case err != nil:
		s.metrics.ObserveProvider(providerType, metrics.OutcomeError, elapsed)
		s.logg.Error(s.logg.WithField(ctx, "provider", providerType), "payment provider call failed", err)
		return providers.Declined("provider error: " + err.Error())
	case result.Success:
		s.metrics.ObserveProvider(providerType, metrics.OutcomeSuccess, elapsed)
	default:
		s.metrics.ObserveProvider(providerType, metrics.OutcomeDeclined, elapsed)
	}
	return result
}

func (s *service) Refund(ctx context.Context, input RefundInput) (bool, error) {
	return s.reverse(ctx, opRefund, input.TransactionID, 0, input.Actor)
}

func (s *service) RefundPartial(ctx context.Context, input PartialRefundInput) (bool, error) {
	if input.AmountCents <= 0 {
		s.metrics.IncOperation(opRefundPartial, metrics.OutcomeNoop)
		return false, nil
	}
	return s.reverse(ctx, opRefundPartial, input.TransactionID, input.AmountCents, input.Actor)
}

// reverse returns money from a successful transaction. A full refund
// (operation opRefund) ignores amountCents and reverses the row's current amount.
func (s *service) reverse(ctx context.Context, operation string, transactionID uuid.UUID, amountCents int64, actor *outbox.ActorRef) (bool, error) {
	if transactionID == uuid.Nil {
		s.metrics.IncOperation(operation, metrics.OutcomeNoop)
		return false, nil
	}
	ctx = s.logg.WithTransactionID(ctx, transactionID.String())

	existing, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncOperation(operation, metrics.OutcomeNoop)
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	ctx = s.logg.WithOrderID(ctx, existing.OrderID.String())

	unlock, err := s.locker.Lock(ctx, existing.OrderID)
	if err != nil {
		return false, err
	}
	defer unlock()

	applied := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		txnRepo := s.transactions.WithTx(tx)

		txn, err := txnRepo.FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock transaction")
		}
		if txn.Status != enums.TransactionStatusSuccess {
			return nil
		}

		full := operation == opRefund
		delta := amountCents
		if full {
			delta = txn.AmountCents
		} else if amountCents > txn.AmountCents {
			return nil
		}

		order, err := ordersRepo.FindByIDForUpdate(ctx, txn.OrderID)
		if err != nil {
			return orderLoadError(err)
		}

		now := s.now().UTC()
		ledgerType := enums.LedgerEventTypePartialRefund
		eventType := enums.EventPaymentPartiallyRefunded
		if full {
			if err := transition(txn, enums.TransactionStatusRefunded); err != nil {
				return err
			}
			txn.Notes = appendNote(txn.Notes, now, "refunded "+money.Format(delta))
			ledgerType = enums.LedgerEventTypeRefund
			eventType = enums.EventPaymentRefunded
		} else {
			txn.AmountCents -= delta
			txn.Notes = appendNote(txn.Notes, now, fmt.Sprintf("partially refunded %s, %s remains", money.Format(delta), money.Format(txn.AmountCents)))
		}
		if err := txnRepo.Update(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
		}

		if err := s.applyAndRecord(ctx, tx, order, txn, -delta, ledgerType, actor); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, eventType, txn, order, actor, "", delta); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
		}
		applied = true
		return nil
	})
	if err != nil {
		s.metrics.IncOperation(operation, metrics.OutcomeError)
		s.logg.Error(ctx, "refund failed", err)
		return false, err
	}
	if !applied {
		s.metrics.IncOperation(operation, metrics.OutcomeNoop)
		return false, nil
	}
	s.metrics.IncOperation(operation, metrics.OutcomeSuccess)
	s.logg.Info(ctx, "refund recorded")
	return true, nil
}

// applyAndRecord moves the order balance by delta, appends the ledger event and
// verifies the order still agrees with its successful transactions.
func (s *service) applyAndRecord(
	ctx context.Context,
	tx *gorm.DB,
	order *models.Order,
	txn *models.PaymentTransaction,
	delta int64,
	ledgerType enums.LedgerEventType,
	actor *outbox.ActorRef,
) error {
	if err := applyDelta(order, delta); err != nil {
		s.metrics.IncInconsistency(inconsistencySource)
		return err
	}
	if err := s.orders.WithTx(tx).UpdateBalance(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order balance")
	}

	amount := delta
	if amount < 0 {
		amount = -amount
	}
	// a full refund of a row already partially refunded to zero moves no money
	if amount > 0 {
		metadata, err := json.Marshal(map[string]any{
			"provider":              txn.PaymentMethod,
			"providerTransactionId": txn.ProviderTransactionID,
		})
		if err != nil {
			return err
		}
		var actorID *uuid.UUID
		if actor != nil && actor.UserID != uuid.Nil {
			id := actor.UserID
			actorID = &id
		}
		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID:       order.ID,
			TransactionID: txn.ID,
			ActorUserID:   actorID,
			Type:          ledgerType,
			AmountCents:   amount,
			Metadata:      metadata,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger event")
		}
	}

	sum, err := s.transactions.WithTx(tx).SumSuccessByOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum successful transactions")
	}
	if err := CheckInvariant(order, sum); err != nil {
		s.metrics.IncInconsistency(inconsistencySource)
		return err
	}
	return nil
}

func (s *service) emit(
	ctx context.Context,
	tx *gorm.DB,
	eventType enums.OutboxEventType,
	txn *models.PaymentTransaction,
	order *models.Order,
	actor *outbox.ActorRef,
	reason string,
	refundedCents int64,
) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   txn.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.PaymentEvent{
			OrderID:        order.ID,
			TransactionID:  txn.ID,
			CustomerUserID: order.CustomerUserID,
			Provider:       enums.ProviderType(txn.PaymentMethod),
			Currency:       order.Currency,
			AmountCents:    txn.AmountCents,
			Status:         txn.Status,
			PaymentStatus:  order.PaymentStatus,
			PaidCents:      order.PaidCents,
			RemainingCents: order.RemainingCents,
			RefundedCents:  refundedCents,
			RetryOf:        txn.RetryOfTransactionID,
			Reason:         reason,
		},
	})
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return nil, orderLoadError(err)
	}
	rows, err := s.transactions.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order transactions")
	}
	return rows, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.transactions.List(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	page, next := pagination.Trim(rows, params.Limit, func(row models.PaymentTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &ListResult{Transactions: page, NextCursor: next}, nil
}

func (s *service) Status(ctx context.Context, orderID uuid.UUID) (*BalanceSnapshot, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLoadError(err)
	}
	snapshot := Snapshot(order)
	return &snapshot, nil
}

// Receipt renders the receipt for a transaction. found is false when either the
// transaction or its order no longer exists.
func (s *service) Receipt(ctx context.Context, transactionID uuid.UUID) ([]byte, bool, error) {
	txn, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	order, err := s.orders.FindByID(ctx, txn.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	doc, err := s.receipts.Render(receipts.Input{Transaction: txn, Order: order})
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render receipt")
	}
	return doc, true, nil
}

func checkChargeable(order *models.Order, amountCents int64) error {
	if order.IsFullyPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order already fully paid").
			WithDetails(map[string]any{"orderId": order.ID.String()})
	}
	if amountCents <= 0 || amountCents > order.RemainingCents {
		return invalidAmount(amountCents, order.RemainingCents)
	}
	return nil
}

func invalidAmount(amountCents, remainingCents int64) error {
	details := map[string]any{"amount": money.Format(amountCents)}
	if remainingCents > 0 {
		details["remaining"] = money.Format(remainingCents)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid amount").WithDetails(details)
}

func orderLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func transition(txn *models.PaymentTransaction, next enums.TransactionStatus) error {
	if !txn.Status.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction status transition not allowed").
			WithDetails(map[string]any{"from": string(txn.Status), "to": string(next)})
	}
	txn.Status = next
	return nil
}

func describeResult(provider enums.ProviderType, result providers.Result) string {
	ref := ""
	if result.TransactionID != nil {
		ref = " ref " + *result.TransactionID
	}
	if result.Success {
		return fmt.Sprintf("charged via %s%s", provider, ref)
	}
	msg := "declined"
	if result.ErrorMessage != nil && *result.ErrorMessage != "" {
		msg = *result.ErrorMessage
	}
	return fmt.Sprintf("%s via %s%s", msg, provider, ref)
}

func appendNote(notes string, at time.Time, line string) string {
	entry := fmt.Sprintf("[%s] %s", at.Format(time.RFC3339), line)
	if strings.TrimSpace(notes) == "" {
		return entry
	}
	return notes + "\n" + entry
}

func stringPtr(v string) *string {
	return &v
}
