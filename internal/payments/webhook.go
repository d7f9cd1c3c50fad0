package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/ledger"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderLineStore is the order side touched by settlement and refund confirmations.
type orderLineStore interface {
	LockCancelledLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.OrderLine, error)
	MarkLineRefundPending(ctx context.Context, tx *gorm.DB, lineID uuid.UUID) error
	MarkLineRefunded(ctx context.Context, tx *gorm.DB, lineID uuid.UUID, refundedCents int64) error
}

type refunder interface {
	InitiateRefund(ctx context.Context, req RefundRequest) (string, error)
}

type WebhookServiceParams struct {
	LedgerRepo        ledger.Repository
	Ledger            ledger.Service
	Outbox            outboxEmitter
	Lines             orderLineStore
	Refunds           refunder
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// WebhookService applies Stripe settlement and refund confirmations to the payment ledger.
type WebhookService struct {
	ledgerRepo ledger.Repository
	ledger     ledger.Service
	outbox     outboxEmitter
	lines      orderLineStore
	refunds    refunder
	txRunner   txRunner
	logg       *logger.Logger
	now        func() time.Time
}

func NewWebhookService(params WebhookServiceParams) (*WebhookService, error) {
	if params.LedgerRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.Lines == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order line store required")
	}
	if params.Refunds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund gateway required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &WebhookService{
		ledgerRepo: params.LedgerRepo,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		lines:      params.Lines,
		refunds:    params.Refunds,
		txRunner:   params.TransactionRunner,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// HandleEvent dispatches a verified Stripe event. Unhandled types are ignored.
func (s *WebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		return s.settlePayment(ctx, &sess)
	case stripe.EventTypeRefundUpdated, stripe.EventTypeChargeRefundUpdated:
		var rf stripe.Refund
		if err := json.Unmarshal(event.Data.Raw, &rf); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund event")
		}
		if rf.Status != stripe.RefundStatusSucceeded {
			return nil
		}
		return s.completeRefund(ctx, &rf)
	default:
		return nil
	}
}

func (s *WebhookService) settlePayment(ctx context.Context, sess *stripe.CheckoutSession) error {
	if sess.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	if sess.PaymentStatus != "" && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil
	}
	paymentRef := ""
	if sess.PaymentIntent != nil {
		paymentRef = sess.PaymentIntent.ID
	}
	if paymentRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no payment intent")
	}

	return s.txRunner.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.ledgerRepo.WithTx(tx)
		txn, err := repo.FindTransactionByReference(ctx, sess.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
					WithDetails(map[string]any{"reference": sess.ID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}
		if txn.Status == enums.TransactionStatusCompleted {
			return nil
		}
		// serializes with CancelLine so a line cancelled while unpaid is seen here
		cancelled, err := s.lines.LockCancelledLines(ctx, tx, txn.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cancelled items")
		}

		settledAt := s.now().UTC()
		if err := repo.UpdateTransaction(ctx, txn.ID, map[string]any{
			"status":            enums.TransactionStatusCompleted,
			"payment_reference": paymentRef,
			"settled_at":        settledAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle transaction")
		}

		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.Entry{
			OrderID:       txn.OrderID,
			TransactionID: txn.ID,
			Type:          enums.LedgerEventPaymentSettled,
			AmountCents:   txn.AmountCents,
			Reference:     paymentRef,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data: payloads.PaymentSettledEvent{
				OrderID:          txn.OrderID,
				TransactionID:    txn.ID,
				PaymentReference: paymentRef,
			},
			OccurredAt: settledAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement event")
		}

		for _, line := range cancelled {
			item := txn.ItemForLine(line.ID)
			if item == nil {
				return pkgerrors.New(pkgerrors.CodeConsistency, "payment transaction has no entry for a cancelled item").
					WithDetails(map[string]any{"line_id": line.ID.String()})
			}
			if item.RefundStatus != enums.RefundStatusNone {
				continue
			}
			if err := s.refundUnpaidCancellation(ctx, tx, txn, item, line, paymentRef); err != nil {
				return err
			}
		}

		if s.logg != nil {
			logCtx := s.logg.WithOrderID(ctx, txn.OrderID.String())
			s.logg.Info(logCtx, "payment settled")
		}
		return nil
	})
}

// refundUnpaidCancellation returns the charge for a line cancelled before the
// buyer paid. The checkout session still collected the full amount.
func (s *WebhookService) refundUnpaidCancellation(ctx context.Context, tx *gorm.DB, txn *models.Transaction, item *models.TransactionItem, line models.OrderLine, paymentRef string) error {
	amount := item.AmountCents
	reference, err := s.refunds.InitiateRefund(ctx, RefundRequest{
		OrderID:          txn.OrderID,
		ProductID:        line.ProductID,
		LineID:           line.ID,
		PaymentReference: paymentRef,
		AmountCents:      amount,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "refund item cancelled before payment")
	}

	if err := s.ledgerRepo.WithTx(tx).UpdateItem(ctx, item.ID, map[string]any{
		"refund_status":    enums.RefundStatusPending,
		"refund_reference": reference,
		"refunded_cents":   amount,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	if err := s.lines.MarkLineRefundPending(ctx, tx, line.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag line refund")
	}

	lineID := line.ID
	sellerID := item.SellerID
	if _, err := s.ledger.RecordEvent(ctx, tx, ledger.Entry{
		OrderID:       txn.OrderID,
		TransactionID: txn.ID,
		OrderLineID:   &lineID,
		SellerID:      &sellerID,
		Type:          enums.LedgerEventRefundInitiated,
		AmountCents:   amount,
		Reference:     reference,
		Metadata:      map[string]any{"reason": "cancelled_before_payment"},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund ledger event")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundInitiated,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data: payloads.RefundInitiatedEvent{
			OrderID:     txn.OrderID,
			LineID:      line.ID,
			AmountCents: amount,
			Reference:   reference,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit refund event")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": txn.OrderID.String(), "line_id": line.ID.String()})
		s.logg.Info(logCtx, "refunded item cancelled before payment")
	}
	return nil
}

func (s *WebhookService) completeRefund(ctx context.Context, rf *stripe.Refund) error {
	if rf.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund id missing")
	}

	return s.txRunner.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.ledgerRepo.WithTx(tx)
		item, err := repo.FindItemByRefundReference(ctx, rf.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// refunds issued outside the marketplace
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction item")
		}
		if item.RefundStatus == enums.RefundStatusCompleted {
			return nil
		}

		txn, err := repo.FindTransactionByID(ctx, item.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "transaction of refunded item missing")
		}

		amount := rf.Amount
		if amount <= 0 {
			amount = item.RefundedCents
		}
		if err := repo.UpdateItem(ctx, item.ID, map[string]any{
			"refund_status":  enums.RefundStatusCompleted,
			"refunded_cents": amount,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete item refund")
		}
		if err := s.lines.MarkLineRefunded(ctx, tx, item.OrderLineID, amount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete line refund")
		}

		lineID := item.OrderLineID
		sellerID := item.SellerID
		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.Entry{
			OrderID:       txn.OrderID,
			TransactionID: txn.ID,
			OrderLineID:   &lineID,
			SellerID:      &sellerID,
			Type:          enums.LedgerEventRefundCompleted,
			AmountCents:   amount,
			Reference:     rf.ID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund completion")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundCompleted,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data: payloads.RefundCompletedEvent{
				OrderID:   txn.OrderID,
				LineID:    lineID,
				Reference: rf.ID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit refund completion")
		}
		return nil
	})
}
