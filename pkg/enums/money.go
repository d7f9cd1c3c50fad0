package enums

// TransactionStatus tracks settlement of the buyer payment behind an order.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
)

// RefundStatus is tracked on both the order line and its ledger item.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
)

// LedgerEventType maps to the ledger_event_type enum in Postgres.
type LedgerEventType string

const (
	LedgerEventPaymentInitialized LedgerEventType = "payment_initialized"
	LedgerEventPaymentSettled     LedgerEventType = "payment_settled"
	LedgerEventPayoutInitiated    LedgerEventType = "payout_initiated"
	LedgerEventRefundInitiated    LedgerEventType = "refund_initiated"
	LedgerEventRefundCompleted    LedgerEventType = "refund_completed"
)

var ledgerEventTypes = []LedgerEventType{
	LedgerEventPaymentInitialized,
	LedgerEventPaymentSettled,
	LedgerEventPayoutInitiated,
	LedgerEventRefundInitiated,
	LedgerEventRefundCompleted,
}

func (t LedgerEventType) IsValid() bool { return oneOf(t, ledgerEventTypes) }
