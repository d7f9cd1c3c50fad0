package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	internalorders "github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type placeOrderItemRequest struct {
	SellerID  string          `json:"sellerId" validate:"required,uuid"`
	ProductID string          `json:"productId" validate:"required,uuid"`
	Name      string          `json:"name" validate:"required,max=200"`
	Color     string          `json:"color" validate:"required,max=50"`
	Size      *string         `json:"size" validate:"omitempty,max=20"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"required,min=1,max=1000"`
}

type deliveryAddressRequest struct {
	Line1      string `json:"line1" validate:"omitempty,max=200"`
	Line2      string `json:"line2" validate:"omitempty,max=200"`
	Locality   string `json:"locality" validate:"required,max=100"`
	Region     string `json:"region" validate:"required,max=100"`
	Country    string `json:"country" validate:"required,max=100"`
	PostalCode string `json:"postalCode" validate:"omitempty,max=20"`
	Phone      string `json:"phone" validate:"required,max=32"`
}

type placeOrderRequest struct {
	CustomerID      string                  `json:"customerId" validate:"omitempty,uuid"`
	TotalAmount     decimal.Decimal         `json:"totalAmount"`
	DeliveryFee     decimal.Decimal         `json:"deliveryFee"`
	Items           []placeOrderItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	DeliveryAddress deliveryAddressRequest  `json:"deliveryAddress"`
}

type updateLineStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing shipped out_for_delivery delivered cancelled"`
}

func (req placeOrderRequest) toInput(actor internalorders.Actor) (internalorders.PlaceOrderInput, error) {
	customerID := actor.UserID
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return internalorders.PlaceOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customerId")
		}
		customerID = parsed
	}

	input := internalorders.PlaceOrderInput{
		Actor:       actor,
		CustomerID:  customerID,
		TotalAmount: req.TotalAmount,
		DeliveryFee: req.DeliveryFee,
		Items:       make([]internalorders.LineInput, 0, len(req.Items)),
		DeliveryAddress: types.DeliveryAddress{
			Line1:      req.DeliveryAddress.Line1,
			Line2:      req.DeliveryAddress.Line2,
			Locality:   req.DeliveryAddress.Locality,
			Region:     req.DeliveryAddress.Region,
			Country:    req.DeliveryAddress.Country,
			PostalCode: req.DeliveryAddress.PostalCode,
			Phone:      req.DeliveryAddress.Phone,
		},
	}
	for _, item := range req.Items {
		// ids were checked by the uuid validator
		input.Items = append(input.Items, internalorders.LineInput{
			SellerID:  uuid.MustParse(item.SellerID),
			ProductID: uuid.MustParse(item.ProductID),
			Name:      item.Name,
			Color:     item.Color,
			Size:      item.Size,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	return input, nil
}

// PlaceOrder creates an order for the authenticated buyer and returns the payment redirect.
func PlaceOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req placeOrderRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput(actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto := internalorders.NewOrderDTO(result.Order)
		dto.AuthorizationURL = result.AuthorizationURL
		dto.PaymentReference = result.Reference
		responses.WriteCreated(w, dto)
	}
}

// UpdateLineStatus moves one order line, addressed by its index, to a new status.
func UpdateLineStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lineIndex, err := validators.ParseIntParam(r, "lineIndex")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateLineStatusRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseLineStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateLineStatus(r.Context(), internalorders.UpdateLineStatusInput{
			Actor:     actor,
			OrderID:   orderID,
			LineIndex: lineIndex,
			Status:    status,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// CancelLine cancels a pending line and refunds it when the payment has settled.
func CancelLine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CancelLine(r.Context(), internalorders.CancelLineInput{
			Actor:   actor,
			OrderID: orderID,
			LineID:  lineID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// Detail returns an order visible to the caller.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}
