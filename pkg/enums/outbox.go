package enums

// OutboxAggregateType maps to aggregate_type_enum.
type OutboxAggregateType string

const (
	AggregateOrder              OutboxAggregateType = "order"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateOrder, AggregatePaymentTransaction}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType maps to event_type_enum and is sent as the event_type
// message attribute.
type OutboxEventType string

const (
	EventPaymentSucceeded         OutboxEventType = "payment_succeeded"
	EventPaymentFailed            OutboxEventType = "payment_failed"
	EventPaymentRefunded          OutboxEventType = "payment_refunded"
	EventPaymentPartiallyRefunded OutboxEventType = "payment_partially_refunded"
)

var outboxEventTypes = set[OutboxEventType]{
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventPaymentPartiallyRefunded,
}

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

// OutboxDLQErrorReason records why the relay gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = set[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
