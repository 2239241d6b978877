package payments

import (
	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
)

// DerivePaymentStatus maps a paid amount against an order total.
func DerivePaymentStatus(paidCents, totalCents int64) enums.PaymentStatus {
	switch {
	case totalCents-paidCents <= 0:
		return enums.PaymentStatusPaid
	case paidCents > 0:
		return enums.PaymentStatusPartiallyPaid
	default:
		return enums.PaymentStatusUnpaid
	}
}

// applyDelta moves the order's paid amount by delta and re-derives every
// dependent column. The order is left untouched when the result is impossible.
func applyDelta(order *models.Order, delta int64) error {
	paid := order.PaidCents + delta
	if paid < 0 || paid > order.TotalCents {
		return pkgerrors.New(pkgerrors.CodeConsistency, "balance out of range").
			WithDetails(map[string]any{
				"orderId":    order.ID.String(),
				"paidCents":  order.PaidCents,
				"deltaCents": delta,
				"totalCents": order.TotalCents,
			})
	}
	order.PaidCents = paid
	order.RemainingCents = order.TotalCents - paid
	order.IsFullyPaid = order.RemainingCents <= 0
	order.PaymentStatus = DerivePaymentStatus(paid, order.TotalCents)
	return nil
}

// CheckInvariant compares the order's balance columns with the sum of its
// successful transaction amounts.
func CheckInvariant(order *models.Order, successSumCents int64) error {
	details := map[string]any{
		"orderId":         order.ID.String(),
		"paidCents":       order.PaidCents,
		"remainingCents":  order.RemainingCents,
		"totalCents":      order.TotalCents,
		"successSumCents": successSumCents,
	}
	switch {
	case order.PaidCents != successSumCents:
		return pkgerrors.New(pkgerrors.CodeConsistency, "paid amount does not match successful transactions").WithDetails(details)
	case order.RemainingCents != order.TotalCents-order.PaidCents:
		return pkgerrors.New(pkgerrors.CodeConsistency, "remaining amount does not match total minus paid").WithDetails(details)
	case order.IsFullyPaid != (order.RemainingCents <= 0):
		return pkgerrors.New(pkgerrors.CodeConsistency, "fully paid flag out of sync").WithDetails(details)
	case order.PaymentStatus != DerivePaymentStatus(order.PaidCents, order.TotalCents):
		return pkgerrors.New(pkgerrors.CodeConsistency, "payment status out of sync").WithDetails(details)
	}
	return nil
}

// Snapshot projects an order into its settlement balance.
func Snapshot(order *models.Order) BalanceSnapshot {
	return BalanceSnapshot{
		OrderID:        order.ID,
		Currency:       order.Currency,
		TotalCents:     order.TotalCents,
		PaidCents:      order.PaidCents,
		RemainingCents: order.RemainingCents,
		IsFullyPaid:    order.IsFullyPaid,
		PaymentStatus:  order.PaymentStatus,
	}
}
