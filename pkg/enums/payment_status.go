package enums

// PaymentStatus is the order-level status. It is derived from the balance
// and never set directly.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
)

var paymentStatuses = set[PaymentStatus]{PaymentStatusUnpaid, PaymentStatusPartiallyPaid, PaymentStatusPaid}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }
