package orders

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
)

var validate = validator.New()

// placement is a validated order request converted to cents.
type placement struct {
	lines            []models.OrderLine
	deliveryFeeCents int64
	totalCents       int64
	sellerIDs        []uuid.UUID
}

func validationError(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s %s", field, message)).
		WithDetails(map[string]string{field: message})
}

// validatePlacement checks the request without touching storage.
func validatePlacement(input *PlaceOrderInput, epsilon decimal.Decimal) (*placement, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.CustomerID == uuid.Nil {
		return nil, validationError("customerId", "is required")
	}
	if input.CustomerID != input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "orders can only be placed for yourself")
	}
	if len(input.Items) == 0 {
		return nil, validationError("items", "must contain at least one item")
	}
	if input.DeliveryFee.IsNegative() {
		return nil, validationError("deliveryFee", "must not be negative")
	}
	feeCents, err := money.ToCents(input.DeliveryFee)
	if err != nil {
		return nil, validationError("deliveryFee", "must have at most two decimal places")
	}
	if err := validateAddress(input); err != nil {
		return nil, err
	}

	plan := &placement{deliveryFeeCents: feeCents}
	seen := map[uuid.UUID]bool{}
	computed := input.DeliveryFee
	for i, item := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case item.SellerID == uuid.Nil:
			return nil, validationError(field+".sellerId", "is required")
		case item.ProductID == uuid.Nil:
			return nil, validationError(field+".productId", "is required")
		case strings.TrimSpace(item.Name) == "":
			return nil, validationError(field+".name", "is required")
		case strings.TrimSpace(item.Color) == "":
			return nil, validationError(field+".color", "is required")
		case item.Quantity < 1:
			return nil, validationError(field+".quantity", "must be at least 1")
		case !item.Price.IsPositive():
			return nil, validationError(field+".price", "must be greater than 0")
		}
		priceCents, err := money.ToCents(item.Price)
		if err != nil {
			return nil, validationError(field+".price", "must have at most two decimal places")
		}

		var size *string
		if item.Size != nil && strings.TrimSpace(*item.Size) != "" {
			trimmed := strings.TrimSpace(*item.Size)
			size = &trimmed
		}
		plan.lines = append(plan.lines, models.OrderLine{
			Position:     i,
			SellerID:     item.SellerID,
			ProductID:    item.ProductID,
			Name:         strings.TrimSpace(item.Name),
			Color:        strings.TrimSpace(item.Color),
			Size:         size,
			PriceCents:   priceCents,
			Quantity:     item.Quantity,
			Status:       enums.LineStatusPending,
			RefundStatus: enums.RefundStatusNone,
		})
		if !seen[item.SellerID] {
			seen[item.SellerID] = true
			plan.sellerIDs = append(plan.sellerIDs, item.SellerID)
		}
		computed = computed.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if !money.WithinEpsilon(input.TotalAmount, computed, epsilon) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "totalAmount does not match items and delivery fee").
			WithDetails(map[string]string{
				"totalAmount": input.TotalAmount.String(),
				"expected":    computed.String(),
			})
	}
	plan.totalCents = orderTotalCents(feeCents, plan.lines)
	return plan, nil
}

func validateAddress(input *PlaceOrderInput) error {
	addr := &input.DeliveryAddress
	addr.Normalize()
	required := []struct {
		field string
		value string
	}{
		{"deliveryAddress.country", addr.Country},
		{"deliveryAddress.region", addr.Region},
		{"deliveryAddress.locality", addr.Locality},
		{"deliveryAddress.phone", addr.Phone},
	}
	for _, r := range required {
		if r.value == "" {
			return validationError(r.field, "is required")
		}
	}
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(addr.Phone)
	if err := validate.Var(phone, "e164"); err != nil {
		return validationError("deliveryAddress.phone", "must be an international phone number such as +14155550123")
	}
	addr.Phone = phone
	return nil
}
