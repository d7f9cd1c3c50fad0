package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// LineInput is one requested order line. Price is in major currency units.
type LineInput struct {
	SellerID  uuid.UUID
	ProductID uuid.UUID
	Name      string
	Color     string
	Size      *string
	Price     decimal.Decimal
	Quantity  int
}

type PlaceOrderInput struct {
	Actor           Actor
	CustomerID      uuid.UUID
	TotalAmount     decimal.Decimal
	Items           []LineInput
	DeliveryAddress types.DeliveryAddress
	DeliveryFee     decimal.Decimal
}

// PlaceOrderResult carries the committed order and where the buyer pays.
type PlaceOrderResult struct {
	Order            *models.Order
	AuthorizationURL string
	Reference        string
}

type UpdateLineStatusInput struct {
	Actor     Actor
	OrderID   uuid.UUID
	LineIndex int
	Status    enums.LineStatus
}

type CancelLineInput struct {
	Actor   Actor
	OrderID uuid.UUID
	LineID  uuid.UUID
}

// OrderDTO is the API representation of an order.
type OrderDTO struct {
	ID               uuid.UUID             `json:"id"`
	CustomerID       uuid.UUID             `json:"customerId"`
	TotalAmount      decimal.Decimal       `json:"totalAmount"`
	DeliveryFee      decimal.Decimal       `json:"deliveryFee"`
	Status           enums.OrderStatus     `json:"status"`
	DeliveryAddress  types.DeliveryAddress `json:"deliveryAddress"`
	TransactionID    *uuid.UUID            `json:"transactionId,omitempty"`
	Items            []OrderLineDTO        `json:"items"`
	AuthorizationURL string                `json:"authorizationUrl,omitempty"`
	PaymentReference string                `json:"paymentReference,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

type OrderLineDTO struct {
	ID             uuid.UUID          `json:"id"`
	Index          int                `json:"index"`
	SellerID       uuid.UUID          `json:"sellerId"`
	ProductID      uuid.UUID          `json:"productId"`
	Name           string             `json:"name"`
	Color          string             `json:"color"`
	Size           *string            `json:"size,omitempty"`
	Price          decimal.Decimal    `json:"price"`
	Quantity       int                `json:"quantity"`
	Status         enums.LineStatus   `json:"status"`
	Cancelled      bool               `json:"cancelled"`
	RefundStatus   enums.RefundStatus `json:"refundStatus"`
	RefundedAmount decimal.Decimal    `json:"refundedAmount"`
}

// NewOrderDTO converts a persisted order into its API shape.
func NewOrderDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		TotalAmount:     money.FromCents(order.TotalCents),
		DeliveryFee:     money.FromCents(order.DeliveryFeeCents),
		Status:          order.Status,
		DeliveryAddress: order.DeliveryAddress,
		TransactionID:   order.TransactionID,
		Items:           make([]OrderLineDTO, 0, len(order.Lines)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, line := range order.Lines {
		dto.Items = append(dto.Items, OrderLineDTO{
			ID:             line.ID,
			Index:          line.Position,
			SellerID:       line.SellerID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			Color:          line.Color,
			Size:           line.Size,
			Price:          money.FromCents(line.PriceCents),
			Quantity:       line.Quantity,
			Status:         line.Status,
			Cancelled:      line.Cancelled,
			RefundStatus:   line.RefundStatus,
			RefundedAmount: money.FromCents(line.RefundedCents),
		})
	}
	return dto
}
