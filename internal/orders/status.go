package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/ledger"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/money"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

const opUpdateLineStatus = "update_line_status"

// statusChange is what the post-commit fan-out needs to know about a transition.
type statusChange struct {
	line      models.OrderLine
	from      enums.LineStatus
	payoutNet int64
	paidOut   bool
}

// UpdateLineStatus moves one line a single step along its lifecycle. Delivery
// credits the seller and transfers their proceeds inside the same unit of work.
func (s *service) UpdateLineStatus(ctx context.Context, input UpdateLineStatusInput) (result *models.Order, err error) {
	started := time.Now()
	defer func() { s.observe(opUpdateLineStatus, started, err) }()

	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, validationError("orderId", "is required")
	}
	if input.LineIndex < 0 {
		return nil, validationError("lineIndex", "must not be negative")
	}
	if !input.Status.IsValid() {
		return nil, validationError("status", "is not a known item status")
	}
	if _, err := requiredParty(input.Status); err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":      input.OrderID.String(),
		"line_index":    input.LineIndex,
		"target_status": input.Status,
		"user_id":       input.Actor.UserID.String(),
	})

	var (
		order  *models.Order
		change statusChange
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		order = loaded
		if input.LineIndex >= len(order.Lines) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found").
				WithDetails(map[string]any{"lineIndex": input.LineIndex})
		}
		line := &order.Lines[input.LineIndex]

		if err := authorizeTransition(order, line, input.Status, input.Actor.UserID); err != nil {
			return err
		}
		if err := checkTransition(line.Status, input.Status); err != nil {
			return err
		}

		change.from = line.Status
		line.Status = input.Status
		if err := repo.UpdateLine(ctx, line.ID, map[string]any{"status": line.Status}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item status")
		}

		buyerDelta := users.CounterDelta{}
		sellerDelta := users.CounterDelta{}
		if change.from == enums.LineStatusPending {
			buyerDelta.Pending--
			sellerDelta.Pending--
		}
		if line.Status == enums.LineStatusDelivered {
			net := money.NetOfCommission(line.SubtotalCents(), order.CommissionBPS)
			buyerDelta.Completed++
			sellerDelta.Completed++
			sellerDelta.BalanceCents += net
			change.payoutNet = net

			paid, err := s.payoutLine(ctx, tx, order, line, net, input.Actor)
			if err != nil {
				return err
			}
			change.paidOut = paid
			if err := s.inventory.MarkSoldIfExhausted(ctx, tx, line.ProductID); err != nil {
				return err
			}
		}

		usersRepo := s.users.WithTx(tx)
		if err := applyCounters(ctx, usersRepo, order.CustomerID, buyerDelta); err != nil {
			return err
		}
		if err := applyCounters(ctx, usersRepo, line.SellerID, sellerDelta); err != nil {
			return err
		}

		if err := s.refreshDerived(ctx, repo, order); err != nil {
			return err
		}
		change.line = *line

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLineStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.LineStatusChangedEvent{
				OrderID:     order.ID,
				LineID:      line.ID,
				Position:    line.Position,
				SellerID:    line.SellerID,
				From:        change.from,
				To:          line.Status,
				OrderStatus: order.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, fmt.Sprintf("order item moved from %s to %s", change.from, change.line.Status))
	s.dispatcher.Background(ctx, s.statusMessages(order, change, input.Actor))
	return order, nil
}

// payoutLine transfers the seller's net proceeds unless the line was already
// paid out. Proceeds are only transferred out of a settled payment. It reports
// whether a transfer was made by this call.
func (s *service) payoutLine(ctx context.Context, tx *gorm.DB, order *models.Order, line *models.OrderLine, net int64, actor Actor) (bool, error) {
	details := map[string]any{"order_id": order.ID.String(), "line_id": line.ID.String()}
	ledgerRepo := s.ledgerRepo.WithTx(tx)
	txn, err := s.loadTransaction(ctx, ledgerRepo, order)
	if err != nil {
		return false, err
	}
	if txn == nil {
		return false, s.consistencyError(ctx, "order has no payment transaction to pay out from", details)
	}
	item := txn.ItemForLine(line.ID)
	if item == nil {
		return false, s.consistencyError(ctx, "payment transaction has no entry for the delivered item", details)
	}
	if item.PayoutStatus != enums.PayoutStatusPending {
		s.logg.Info(ctx, "payout already made for item, skipping")
		return false, nil
	}
	if txn.Status != enums.TransactionStatusCompleted {
		return false, pkgerrors.New(pkgerrors.CodeConflict, "buyer payment has not settled").
			WithDetails(map[string]any{"transactionStatus": txn.Status})
	}

	seller, err := s.users.WithTx(tx).FindByID(ctx, line.SellerID)
	if err != nil {
		return false, notFoundOr(err, "seller not found", "load seller")
	}
	if seller.PayoutSubaccountCode == nil || *seller.PayoutSubaccountCode == "" {
		return false, s.consistencyError(ctx, "seller has no payout subaccount", details)
	}
	if net <= 0 {
		s.logg.Warn(ctx, "net proceeds are zero, nothing to pay out")
		return false, nil
	}

	var reference string
	req := payments.PayoutRequest{
		TransactionID:  txn.ID,
		LineID:         line.ID,
		OrderID:        order.ID,
		SubaccountCode: *seller.PayoutSubaccountCode,
		AmountCents:    net,
	}
	if err := s.callGateway(ctx, "initiate_payout", func(ctx context.Context) error {
		var callErr error
		reference, callErr = s.gateway.InitiatePayout(ctx, req)
		return callErr
	}); err != nil {
		return false, err
	}

	if err := ledgerRepo.UpdateItem(ctx, item.ID, map[string]any{
		"payout_status":    enums.PayoutStatusCompleted,
		"payout_reference": reference,
		"payout_cents":     net,
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout")
	}

	sellerID := line.SellerID
	lineID := line.ID
	if _, err := s.ledger.RecordEvent(ctx, tx, ledger.Entry{
		OrderID:       order.ID,
		TransactionID: txn.ID,
		OrderLineID:   &lineID,
		SellerID:      &sellerID,
		ActorUserID:   &actor.UserID,
		Type:          enums.LedgerEventPayoutInitiated,
		AmountCents:   net,
		Reference:     reference,
		Metadata: map[string]any{
			"gross_cents":    line.SubtotalCents(),
			"commission_bps": order.CommissionBPS,
		},
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout ledger event")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutInitiated,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Actor:         actorRef(actor),
		Data: payloads.PayoutInitiatedEvent{
			OrderID:     order.ID,
			LineID:      line.ID,
			SellerID:    line.SellerID,
			AmountCents: net,
			Reference:   reference,
		},
	}); err != nil {
		return false, err
	}
	return true, nil
}

// refreshDerived recomputes the order total and status from its lines.
func (s *service) refreshDerived(ctx context.Context, repo *Repository, order *models.Order) error {
	order.TotalCents = orderTotalCents(order.DeliveryFeeCents, order.Lines)
	order.Status = deriveOrderStatus(order.Lines)
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"total_cents": order.TotalCents,
		"status":      order.Status,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order totals")
	}
	return nil
}
