package enums

// LedgerEventType maps to ledger_event_type_enum.
type LedgerEventType string

const (
	LedgerEventTypeCharge        LedgerEventType = "charge"
	LedgerEventTypeRefund        LedgerEventType = "refund"
	LedgerEventTypePartialRefund LedgerEventType = "partial_refund"
)

var ledgerEventTypes = set[LedgerEventType]{LedgerEventTypeCharge, LedgerEventTypeRefund, LedgerEventTypePartialRefund}

func (t LedgerEventType) IsValid() bool { return ledgerEventTypes.has(t) }

// Sign is +1 for entries that add to the paid amount and -1 for reversals.
func (t LedgerEventType) Sign() int64 {
	if t == LedgerEventTypeCharge {
		return 1
	}
	return -1
}
