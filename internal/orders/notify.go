package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/internal/dispatch"
	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
)

func notification(userID uuid.UUID, kind enums.NotificationType, content string, productID, senderID *uuid.UUID) dispatch.Message {
	return dispatch.Message{Notification: &notifications.NotifyInput{
		UserID:           userID,
		Type:             kind,
		Content:          content,
		RelatedProductID: productID,
		SenderID:         senderID,
	}}
}

func email(address, subject, body string) dispatch.Message {
	return dispatch.Message{Email: &dispatch.Email{Address: address, Subject: subject, Body: body}}
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}

// placementMessages notifies the buyer, each seller about their own lines and
// every admin. A failed admin lookup only drops the admin notifications.
func (s *service) placementMessages(ctx context.Context, order *models.Order, buyer *models.User, sellers map[uuid.UUID]models.User) []dispatch.Message {
	ref := shortID(order.ID)
	total := money.FromCents(order.TotalCents).StringFixed(2)
	buyerID := buyer.ID

	msgs := []dispatch.Message{
		notification(buyer.ID, enums.NotificationTypeOrderPlaced,
			fmt.Sprintf("Your order %s was placed. Total %s.", ref, total), nil, nil),
	}
	if buyer.Email != "" {
		msgs = append(msgs, email(buyer.Email,
			fmt.Sprintf("Order %s confirmed", ref),
			fmt.Sprintf("Hi %s,\n\nWe received your order %s with %d item(s). Total: %s.", buyer.Name, ref, len(order.Lines), total)))
	}

	grouped := make(map[uuid.UUID][]models.OrderLine)
	var sellerOrder []uuid.UUID
	for _, line := range order.Lines {
		if _, seen := grouped[line.SellerID]; !seen {
			sellerOrder = append(sellerOrder, line.SellerID)
		}
		grouped[line.SellerID] = append(grouped[line.SellerID], line)
	}
	for _, sellerID := range sellerOrder {
		lines := grouped[sellerID]
		names := make([]string, 0, len(lines))
		for _, line := range lines {
			names = append(names, fmt.Sprintf("%s x%d", line.Name, line.Quantity))
		}
		productID := lines[0].ProductID
		summary := strings.Join(names, ", ")
		msgs = append(msgs, notification(sellerID, enums.NotificationTypeNewOrder,
			fmt.Sprintf("New order %s: %s", ref, summary), &productID, &buyerID))
		if seller, ok := sellers[sellerID]; ok && seller.Email != "" {
			msgs = append(msgs, email(seller.Email,
				fmt.Sprintf("New order %s", ref),
				fmt.Sprintf("Hi %s,\n\nYou have a new order %s: %s.", seller.Name, ref, summary)))
		}
	}

	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		s.logg.Error(ctx, "failed to load admins for order notifications", err)
	}
	adminContent := fmt.Sprintf("Order %s placed by %s for %s.", ref, buyer.Name, total)
	addresses := make([]string, 0, len(admins)+len(s.adminEmails))
	seen := make(map[string]struct{})
	addAddress := func(address string) {
		key := strings.ToLower(strings.TrimSpace(address))
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		addresses = append(addresses, strings.TrimSpace(address))
	}
	for _, admin := range admins {
		msgs = append(msgs, notification(admin.ID, enums.NotificationTypeAdminOrder, adminContent, nil, &buyerID))
		addAddress(admin.Email)
	}
	for _, address := range s.adminEmails {
		addAddress(address)
	}
	for _, address := range addresses {
		msgs = append(msgs, email(address, fmt.Sprintf("New order %s", ref), adminContent))
	}
	return msgs
}

func (s *service) statusMessages(order *models.Order, change statusChange, actor Actor) []dispatch.Message {
	ref := shortID(order.ID)
	productID := change.line.ProductID
	senderID := actor.UserID

	msgs := []dispatch.Message{
		notification(order.CustomerID, enums.NotificationTypeOrderStatus,
			fmt.Sprintf("%s in order %s is now %s.", change.line.Name, ref, humanStatus(change.line.Status)),
			&productID, &senderID),
	}
	if change.paidOut {
		msgs = append(msgs, notification(change.line.SellerID, enums.NotificationTypePayoutSent,
			fmt.Sprintf("Payout of %s for %s in order %s is on its way.",
				money.FromCents(change.payoutNet).StringFixed(2), change.line.Name, ref),
			&productID, nil))
	}
	return msgs
}

// cancellationMessages tells the other party about the cancellation and the
// buyer about a pending refund.
func (s *service) cancellationMessages(order *models.Order, cancel cancellation, actor Actor) []dispatch.Message {
	ref := shortID(order.ID)
	productID := cancel.line.ProductID
	senderID := actor.UserID
	content := fmt.Sprintf("%s in order %s was cancelled.", cancel.line.Name, ref)

	msgs := []dispatch.Message{
		notification(order.CustomerID, enums.NotificationTypeOrderCancelled, content, &productID, &senderID),
		notification(cancel.line.SellerID, enums.NotificationTypeOrderCancelled, content, &productID, &senderID),
	}
	if cancel.refunded {
		msgs = append(msgs, notification(order.CustomerID, enums.NotificationTypeRefundInitiated,
			fmt.Sprintf("A refund of %s for %s is being processed.",
				money.FromCents(cancel.refundCents).StringFixed(2), cancel.line.Name),
			&productID, nil))
	}
	return msgs
}

func humanStatus(status enums.LineStatus) string {
	return strings.ReplaceAll(string(status), "_", " ")
}
