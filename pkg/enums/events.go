package enums

type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateTransaction OutboxAggregateType = "transaction"
)

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderPlaced       OutboxEventType = "order_placed"
	EventLineStatusChanged OutboxEventType = "line_status_changed"
	EventLineCancelled     OutboxEventType = "line_cancelled"
	EventPayoutInitiated   OutboxEventType = "payout_initiated"
	EventRefundInitiated   OutboxEventType = "refund_initiated"
	EventPaymentSettled    OutboxEventType = "payment_settled"
	EventRefundCompleted   OutboxEventType = "refund_completed"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventLineStatusChanged,
	EventLineCancelled,
	EventPayoutInitiated,
	EventRefundInitiated,
	EventPaymentSettled,
	EventRefundCompleted,
}

func (e OutboxEventType) IsValid() bool { return oneOf(e, outboxEventTypes) }

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOrderPlaced     NotificationType = "order_placed"
	NotificationTypeNewOrder        NotificationType = "new_order"
	NotificationTypeAdminOrder      NotificationType = "admin_new_order"
	NotificationTypeOrderStatus     NotificationType = "order_status_updated"
	NotificationTypeOrderCancelled  NotificationType = "order_cancelled"
	NotificationTypePayoutSent      NotificationType = "payout_sent"
	NotificationTypeRefundInitiated NotificationType = "refund_initiated"
)

var notificationTypes = []NotificationType{
	NotificationTypeOrderPlaced,
	NotificationTypeNewOrder,
	NotificationTypeAdminOrder,
	NotificationTypeOrderStatus,
	NotificationTypeOrderCancelled,
	NotificationTypePayoutSent,
	NotificationTypeRefundInitiated,
}

func (n NotificationType) IsValid() bool { return oneOf(n, notificationTypes) }
