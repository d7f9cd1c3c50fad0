package orders

import (
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// orderTotalCents is the delivery fee plus every non-cancelled line subtotal.
func orderTotalCents(deliveryFeeCents int64, lines []models.OrderLine) int64 {
	total := deliveryFeeCents
	for _, line := range lines {
		if line.Cancelled {
			continue
		}
		total += line.SubtotalCents()
	}
	return total
}

// deriveOrderStatus folds line statuses into the order status.
func deriveOrderStatus(lines []models.OrderLine) enums.OrderStatus {
	if len(lines) == 0 {
		return enums.OrderStatusPending
	}
	allDelivered := true
	allShipped := true
	for _, line := range lines {
		switch line.Status {
		case enums.LineStatusDelivered, enums.LineStatusCancelled:
		case enums.LineStatusShipped, enums.LineStatusOutForDelivery:
			allDelivered = false
		default:
			allDelivered = false
			allShipped = false
		}
	}
	switch {
	case allDelivered:
		return enums.OrderStatusDelivered
	case allShipped:
		return enums.OrderStatusShipped
	default:
		return enums.OrderStatusPending
	}
}
