package enums

// NotificationType maps to notification_type_enum.
type NotificationType string

const (
	NotificationTypePaymentReceived          NotificationType = "payment_received"
	NotificationTypePaymentFailed            NotificationType = "payment_failed"
	NotificationTypePaymentRefunded          NotificationType = "payment_refunded"
	NotificationTypePaymentPartiallyRefunded NotificationType = "payment_partially_refunded"
)

var notificationTypes = set[NotificationType]{
	NotificationTypePaymentReceived,
	NotificationTypePaymentFailed,
	NotificationTypePaymentRefunded,
	NotificationTypePaymentPartiallyRefunded,
}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }
