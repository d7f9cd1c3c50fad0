package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/internal/ledger"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

const opPlaceOrder = "place_order"

// PlaceOrder validates the request, provisions missing seller payout accounts,
// then reserves stock, persists the order and opens the payment in a single
// unit of work. Either all of them exist afterwards or none do.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (result *PlaceOrderResult, err error) {
	started := time.Now()
	defer func() { s.observe(opPlaceOrder, started, err) }()

	ctx = s.logg.WithActor(ctx, input.Actor.UserID.String(), string(input.Actor.Role))
	plan, err := validatePlacement(&input, s.epsilon)
	if err != nil {
		return nil, err
	}

	buyer, err := s.users.FindByID(ctx, input.CustomerID)
	if err != nil {
		return nil, notFoundOr(err, "customer not found", "load customer")
	}
	sellers, err := s.users.FindByIDs(ctx, plan.sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sellers")
	}
	for _, id := range plan.sellerIDs {
		if _, ok := sellers[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found").
				WithDetails(map[string]any{"sellerId": id.String()})
		}
	}
	if err := s.checkListingOwnership(ctx, plan.lines); err != nil {
		return nil, err
	}
	if err := s.ensureSubaccounts(ctx, plan.sellerIDs, sellers); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:               uuid.New(),
		CustomerID:       buyer.ID,
		DeliveryFeeCents: plan.deliveryFeeCents,
		TotalCents:       plan.totalCents,
		Status:           enums.OrderStatusPending,
		DeliveryAddress:  input.DeliveryAddress,
		CommissionBPS:    s.commission,
		Lines:            plan.lines,
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	var intent *payments.PaymentIntent
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		reservations := make([]inventory.Reservation, 0, len(order.Lines))
		for _, line := range order.Lines {
			reservations = append(reservations, inventory.Reservation{ProductID: line.ProductID, Quantity: line.Quantity})
		}
		if err := s.inventory.Reserve(ctx, tx, reservations); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		req := paymentRequest(order, buyer.Email)
		if err := s.callGateway(ctx, "initialize_payment", func(ctx context.Context) error {
			var callErr error
			intent, callErr = s.gateway.InitializePayment(ctx, req)
			return callErr
		}); err != nil {
			return err
		}

		txn := &models.Transaction{
			OrderID:          order.ID,
			CustomerID:       buyer.ID,
			Reference:        intent.Reference,
			AuthorizationURL: intent.AuthorizationURL,
			AmountCents:      order.TotalCents,
			Currency:         s.currency,
			Status:           enums.TransactionStatusPending,
		}
		for _, line := range order.Lines {
			txn.Items = append(txn.Items, models.TransactionItem{
				OrderLineID:  line.ID,
				SellerID:     line.SellerID,
				AmountCents:  line.SubtotalCents(),
				PayoutStatus: enums.PayoutStatusPending,
				RefundStatus: enums.RefundStatusNone,
			})
		}
		ledgerRepo := s.ledgerRepo.WithTx(tx)
		if err := ledgerRepo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"transaction_id": txn.ID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link transaction")
		}
		order.TransactionID = &txn.ID

		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.Entry{
			OrderID:       order.ID,
			TransactionID: txn.ID,
			ActorUserID:   &buyer.ID,
			Type:          enums.LedgerEventPaymentInitialized,
			AmountCents:   txn.AmountCents,
			Reference:     intent.Reference,
			Metadata:      map[string]any{"commission_bps": order.CommissionBPS},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment initialization")
		}

		if err := s.applyPlacementCounters(ctx, tx, order); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.OrderPlacedEvent{
				OrderID:       order.ID,
				TransactionID: txn.ID,
				CustomerID:    buyer.ID,
				SellerIDs:     plan.sellerIDs,
				TotalCents:    order.TotalCents,
				Reference:     intent.Reference,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "order placed")
	s.dispatcher.Background(ctx, s.placementMessages(ctx, order, buyer, sellers))

	return &PlaceOrderResult{
		Order:            order,
		AuthorizationURL: intent.AuthorizationURL,
		Reference:        intent.Reference,
	}, nil
}

// checkListingOwnership rejects lines whose product belongs to another seller.
// Missing listings are left to the reservation, which reports them as conflicts.
func (s *service) checkListingOwnership(ctx context.Context, lines []models.OrderLine) error {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	listings, err := s.listings.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listings")
	}
	owners := make(map[uuid.UUID]uuid.UUID, len(listings))
	for _, listing := range listings {
		owners[listing.ID] = listing.SellerID
	}
	for _, line := range lines {
		owner, ok := owners[line.ProductID]
		if ok && owner != line.SellerID {
			return validationError(fmt.Sprintf("items[%d].sellerId", line.Position), "does not own the product")
		}
	}
	return nil
}

// ensureSubaccounts provisions a payout account for every seller lacking one.
func (s *service) ensureSubaccounts(ctx context.Context, sellerIDs []uuid.UUID, sellers map[uuid.UUID]models.User) error {
	for _, id := range sellerIDs {
		seller := sellers[id]
		if seller.PayoutSubaccountCode != nil && *seller.PayoutSubaccountCode != "" {
			continue
		}
		var code string
		if err := s.callGateway(ctx, "create_subaccount", func(ctx context.Context) error {
			var callErr error
			code, callErr = s.gateway.CreateSubaccount(ctx, seller)
			return callErr
		}); err != nil {
			return err
		}
		if err := s.users.SetPayoutSubaccount(ctx, id, code); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payout subaccount")
		}
		seller.PayoutSubaccountCode = &code
		sellers[id] = seller
	}
	return nil
}

// applyPlacementCounters adds one pending order per line to the buyer and to
// each seller for their own lines.
func (s *service) applyPlacementCounters(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	perSeller := map[uuid.UUID]int{}
	var sellerOrder []uuid.UUID
	for _, line := range order.Lines {
		if perSeller[line.SellerID] == 0 {
			sellerOrder = append(sellerOrder, line.SellerID)
		}
		perSeller[line.SellerID]++
	}
	repo := s.users.WithTx(tx)
	if err := applyCounters(ctx, repo, order.CustomerID, users.CounterDelta{Pending: len(order.Lines)}); err != nil {
		return err
	}
	for _, sellerID := range sellerOrder {
		if err := applyCounters(ctx, repo, sellerID, users.CounterDelta{Pending: perSeller[sellerID]}); err != nil {
			return err
		}
	}
	return nil
}

func applyCounters(ctx context.Context, repo *users.Repository, userID uuid.UUID, delta users.CounterDelta) error {
	if err := repo.ApplyCounters(ctx, userID, delta); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeConsistency, "user missing while updating order counters").
				WithDetails(map[string]any{"userId": userID.String()})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order counters")
	}
	return nil
}

func paymentRequest(order *models.Order, payerEmail string) payments.PaymentRequest {
	req := payments.PaymentRequest{
		OrderID:          order.ID,
		PayerEmail:       payerEmail,
		DeliveryFeeCents: order.DeliveryFeeCents,
	}
	for _, line := range order.Lines {
		name := line.Name
		if line.Size != nil {
			name = fmt.Sprintf("%s (%s, %s)", line.Name, line.Color, *line.Size)
		} else if line.Color != "" {
			name = fmt.Sprintf("%s (%s)", line.Name, line.Color)
		}
		req.Lines = append(req.Lines, payments.PaymentLine{
			Name:            name,
			UnitAmountCents: line.PriceCents,
			Quantity:        int64(line.Quantity),
		})
	}
	return req
}
