package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/ledger"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

const opCancelLine = "cancel_line"

type cancellation struct {
	line        models.OrderLine
	refundCents int64
	refunded    bool
}

// CancelLine closes a pending line, refunds it when the buyer's payment has
// settled and returns its stock. Refund, restock and counters commit together.
func (s *service) CancelLine(ctx context.Context, input CancelLineInput) (result *models.Order, err error) {
	started := time.Now()
	defer func() { s.observe(opCancelLine, started, err) }()

	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, validationError("orderId", "is required")
	}
	if input.LineID == uuid.Nil {
		return nil, validationError("itemId", "is required")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": input.OrderID.String(),
		"line_id":  input.LineID.String(),
		"user_id":  input.Actor.UserID.String(),
	})

	var (
		order  *models.Order
		cancel cancellation
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		order = loaded

		line := findLine(order, input.LineID)
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if input.Actor.UserID != order.CustomerID && input.Actor.UserID != line.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer or the item's seller can cancel it")
		}
		if line.Cancelled || line.Status == enums.LineStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeConflict, "item is already cancelled")
		}
		if line.Status != enums.LineStatusPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "only pending items can be cancelled").
				WithDetails(map[string]any{"status": line.Status})
		}

		cancel.refundCents = line.SubtotalCents()
		refunded, err := s.refundLine(ctx, tx, order, line, cancel.refundCents, input.Actor)
		if err != nil {
			return err
		}
		cancel.refunded = refunded

		line.Cancelled = true
		line.Status = enums.LineStatusCancelled
		line.RefundedCents = cancel.refundCents
		updates := map[string]any{
			"cancelled":      true,
			"status":         enums.LineStatusCancelled,
			"refunded_cents": cancel.refundCents,
		}
		if refunded {
			line.RefundStatus = enums.RefundStatusPending
			updates["refund_status"] = enums.RefundStatusPending
		}
		if err := repo.UpdateLine(ctx, line.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel item")
		}

		if err := s.inventory.Restore(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}

		delta := users.CounterDelta{Pending: -1, Failed: 1}
		usersRepo := s.users.WithTx(tx)
		if err := applyCounters(ctx, usersRepo, order.CustomerID, delta); err != nil {
			return err
		}
		if err := applyCounters(ctx, usersRepo, line.SellerID, delta); err != nil {
			return err
		}

		if err := s.refreshDerived(ctx, repo, order); err != nil {
			return err
		}
		cancel.line = *line

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLineCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.LineCancelledEvent{
				OrderID:     order.ID,
				LineID:      line.ID,
				SellerID:    line.SellerID,
				ProductID:   line.ProductID,
				Quantity:    line.Quantity,
				RefundCents: cancel.refundCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "order item cancelled")
	s.dispatcher.Background(ctx, s.cancellationMessages(order, cancel, input.Actor))
	return order, nil
}

// refundLine applies the refund guards and, when the payment has settled,
// requests the refund. It reports whether a refund was requested.
func (s *service) refundLine(ctx context.Context, tx *gorm.DB, order *models.Order, line *models.OrderLine, amount int64, actor Actor) (bool, error) {
	if order.TransactionID == nil {
		return false, nil
	}
	details := map[string]any{"order_id": order.ID.String(), "line_id": line.ID.String()}
	ledgerRepo := s.ledgerRepo.WithTx(tx)
	txn, err := s.loadTransaction(ctx, ledgerRepo, order)
	if err != nil {
		return false, err
	}
	if txn == nil {
		return false, s.consistencyError(ctx, "order references a payment transaction that does not exist", details)
	}
	if txn.IsReversed {
		return false, pkgerrors.New(pkgerrors.CodeConflict, "payment was already reversed in full")
	}
	item := txn.ItemForLine(line.ID)
	if item == nil {
		return false, s.consistencyError(ctx, "payment transaction has no entry for the cancelled item", details)
	}
	if item.RefundStatus != enums.RefundStatusNone {
		return false, pkgerrors.New(pkgerrors.CodeConflict, "a refund was already requested for this item").
			WithDetails(map[string]any{"refundStatus": item.RefundStatus})
	}
	if txn.Status != enums.TransactionStatusCompleted {
		return false, nil
	}
	if txn.PaymentReference == nil || *txn.PaymentReference == "" {
		return false, s.consistencyError(ctx, "settled transaction has no payment reference", details)
	}

	var reference string
	req := payments.RefundRequest{
		OrderID:          order.ID,
		ProductID:        line.ProductID,
		LineID:           line.ID,
		PaymentReference: *txn.PaymentReference,
		AmountCents:      amount,
	}
	if err := s.callGateway(ctx, "initiate_refund", func(ctx context.Context) error {
		var callErr error
		reference, callErr = s.gateway.InitiateRefund(ctx, req)
		return callErr
	}); err != nil {
		return false, err
	}

	if err := ledgerRepo.UpdateItem(ctx, item.ID, map[string]any{
		"refund_status":    enums.RefundStatusPending,
		"refund_reference": reference,
		"refunded_cents":   amount,
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}

	lineID := line.ID
	sellerID := line.SellerID
	if _, err := s.ledger.RecordEvent(ctx, tx, ledger.Entry{
		OrderID:       order.ID,
		TransactionID: txn.ID,
		OrderLineID:   &lineID,
		SellerID:      &sellerID,
		ActorUserID:   &actor.UserID,
		Type:          enums.LedgerEventRefundInitiated,
		AmountCents:   amount,
		Reference:     reference,
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund ledger event")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundInitiated,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Actor:         actorRef(actor),
		Data: payloads.RefundInitiatedEvent{
			OrderID:     order.ID,
			LineID:      line.ID,
			AmountCents: amount,
			Reference:   reference,
		},
	}); err != nil {
		return false, err
	}
	return true, nil
}

func findLine(order *models.Order, lineID uuid.UUID) *models.OrderLine {
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			return &order.Lines[i]
		}
	}
	return nil
}
