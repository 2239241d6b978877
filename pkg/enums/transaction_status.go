package enums

import "slices"

// TransactionStatus maps to transaction_status_enum.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusSuccess  TransactionStatus = "success"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

var transactionStatuses = set[TransactionStatus]{
	TransactionStatusPending,
	TransactionStatusSuccess,
	TransactionStatusFailed,
	TransactionStatusRefunded,
}

// transitions is every legal edge of a transaction row's lifecycle. A
// partial refund leaves the row at success.
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {TransactionStatusSuccess, TransactionStatusFailed},
	TransactionStatusSuccess: {TransactionStatusRefunded},
}

func (s TransactionStatus) String() string { return string(s) }

func (s TransactionStatus) IsValid() bool { return transactionStatuses.has(s) }

// IsTerminal reports whether no transition leaves s.
func (s TransactionStatus) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return slices.Contains(transitions[s], next)
}
