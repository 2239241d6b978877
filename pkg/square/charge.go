package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// Charge is one card or bank charge against the configured location.
type Charge struct {
	AmountCents int64
	Currency    string
	// SourceID is a card nonce, card-on-file id or bank account id.
	SourceID       string
	IdempotencyKey string
	OrderRef       string
	Note           string
}

// Square payment statuses that mean the money moved.
const (
	StatusCompleted = "COMPLETED"
	StatusApproved  = "APPROVED"
)

// Settled reports whether Square accepted the charge.
func Settled(p *sq.Payment) bool {
	if p == nil || p.GetStatus() == nil {
		return false
	}
	s := strings.ToUpper(*p.GetStatus())
	return s == StatusCompleted || s == StatusApproved
}

// Status returns the raw Square status, or "" when absent.
func Status(p *sq.Payment) string {
	if p == nil || p.GetStatus() == nil {
		return ""
	}
	return *p.GetStatus()
}

func (c Charge) request(location, idempotencyKey string) *sq.CreatePaymentRequest {
	currency := sq.Currency(strings.ToUpper(strings.TrimSpace(c.Currency)))
	if currency == "" {
		currency = sq.Currency("USD")
	}
	amount := c.AmountCents

	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		SourceID:       c.SourceID,
		AmountMoney:    &sq.Money{Amount: &amount, Currency: &currency},
		LocationID:     optional(location),
		ReferenceID:    optional(c.OrderRef),
		Note:           optional(c.Note),
		// Auto-complete so a success is final and never needs a capture step.
		Autocomplete: boolPtr(true),
	}
	return req
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func boolPtr(v bool) *bool { return &v }
