package payloads

import (
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderPlacedEvent is emitted once an order, its lines and its transaction are persisted.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID   `json:"order_id"`
	TransactionID uuid.UUID   `json:"transaction_id"`
	CustomerID    uuid.UUID   `json:"customer_id"`
	SellerIDs     []uuid.UUID `json:"seller_ids"`
	TotalCents    int64       `json:"total_cents"`
	Reference     string      `json:"reference"`
}

// LineStatusChangedEvent reports a single line moving along its lifecycle.
type LineStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	LineID      uuid.UUID         `json:"line_id"`
	Position    int               `json:"position"`
	SellerID    uuid.UUID         `json:"seller_id"`
	From        enums.LineStatus  `json:"from"`
	To          enums.LineStatus  `json:"to"`
	OrderStatus enums.OrderStatus `json:"order_status"`
}

// LineCancelledEvent is emitted when a buyer cancels a pending line.
type LineCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	LineID      uuid.UUID `json:"line_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Quantity    int       `json:"quantity"`
	RefundCents int64     `json:"refund_cents"`
}

// PayoutInitiatedEvent is emitted when seller proceeds are transferred.
type PayoutInitiatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	LineID      uuid.UUID `json:"line_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference"`
}

// RefundInitiatedEvent is emitted when a refund is requested from the gateway.
type RefundInitiatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	LineID      uuid.UUID `json:"line_id"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference"`
}

// PaymentSettledEvent is emitted when the gateway confirms the buyer paid.
type PaymentSettledEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	TransactionID    uuid.UUID `json:"transaction_id"`
	PaymentReference string    `json:"payment_reference"`
}

// RefundCompletedEvent is emitted when the gateway confirms a refund.
type RefundCompletedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	LineID    uuid.UUID `json:"line_id"`
	Reference string    `json:"reference"`
}
