package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
	pkgstripe "github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

var testSettings = pkgstripe.Settings{
	Currency:       "usd",
	AccountCountry: "US",
	SuccessURL:     "https://shop.example.com/orders/success",
	CancelURL:      "https://shop.example.com/orders/cancel",
}

func TestBuildCheckoutParams(t *testing.T) {
	orderID := uuid.New()
	params, err := buildCheckoutParams(testSettings, PaymentRequest{
		OrderID:    orderID,
		PayerEmail: " buyer@example.com ",
		Lines: []PaymentLine{
			{Name: "Linen shirt", UnitAmountCents: 10000, Quantity: 2},
			{Name: "Scarf", UnitAmountCents: 5000, Quantity: 1},
		},
		DeliveryFeeCents: 4000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.LineItems) != 3 {
		t.Fatalf("expected delivery fee as third line, got %d items", len(params.LineItems))
	}
	fee := params.LineItems[2]
	if *fee.PriceData.UnitAmount != 4000 || *fee.PriceData.ProductData.Name != deliveryFeeLineName {
		t.Fatalf("unexpected delivery fee line %+v", fee.PriceData)
	}
	if *params.ClientReferenceID != orderID.String() || *params.PaymentIntentData.TransferGroup != orderID.String() {
		t.Fatalf("order id must tag the session and transfer group")
	}
	if *params.CustomerEmail != "buyer@example.com" {
		t.Fatalf("unexpected email %q", *params.CustomerEmail)
	}
	if *params.IdempotencyKey != "payment:"+orderID.String() {
		t.Fatalf("unexpected idempotency key %q", *params.IdempotencyKey)
	}
	if params.Metadata["order_id"] != orderID.String() {
		t.Fatalf("missing order metadata")
	}
}

func TestBuildCheckoutParamsRejectsEmptyOrInvalidLines(t *testing.T) {
	if _, err := buildCheckoutParams(testSettings, PaymentRequest{OrderID: uuid.New()}); err == nil {
		t.Fatal("expected error for no lines")
	}
	_, err := buildCheckoutParams(testSettings, PaymentRequest{
		OrderID: uuid.New(),
		Lines:   []PaymentLine{{Name: "free", UnitAmountCents: 0, Quantity: 1}},
	})
	if err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestPaymentRequestAmount(t *testing.T) {
	req := PaymentRequest{
		Lines: []PaymentLine{
			{UnitAmountCents: 10000, Quantity: 2},
			{UnitAmountCents: 5000, Quantity: 1},
		},
		DeliveryFeeCents: 4000,
	}
	if got := req.AmountCents(); got != 29000 {
		t.Fatalf("expected 29000, got %d", got)
	}
}

func TestBuildTransferParams(t *testing.T) {
	lineID := uuid.New()
	orderID := uuid.New()
	params, err := buildTransferParams(testSettings, PayoutRequest{
		TransactionID:  uuid.New(),
		LineID:         lineID,
		OrderID:        orderID,
		SubaccountCode: "acct_123",
		AmountCents:    18000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *params.Amount != 18000 || *params.Destination != "acct_123" || *params.Currency != "usd" {
		t.Fatalf("unexpected transfer params %+v", params)
	}
	if *params.TransferGroup != orderID.String() {
		t.Fatalf("transfer must join the order transfer group")
	}
	if *params.IdempotencyKey != PayoutIdempotencyKey(lineID) {
		t.Fatalf("unexpected idempotency key %q", *params.IdempotencyKey)
	}

	if _, err := buildTransferParams(testSettings, PayoutRequest{AmountCents: 100}); err == nil {
		t.Fatal("expected missing subaccount error")
	}
	if _, err := buildTransferParams(testSettings, PayoutRequest{SubaccountCode: "acct_1"}); err == nil {
		t.Fatal("expected non-positive amount error")
	}
}

func TestBuildRefundParams(t *testing.T) {
	lineID := uuid.New()
	params, err := buildRefundParams(RefundRequest{
		OrderID:          uuid.New(),
		ProductID:        uuid.New(),
		LineID:           lineID,
		PaymentReference: "pi_123",
		AmountCents:      5000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *params.PaymentIntent != "pi_123" || *params.Amount != 5000 {
		t.Fatalf("unexpected refund params %+v", params)
	}
	if *params.IdempotencyKey != RefundIdempotencyKey(lineID) {
		t.Fatalf("unexpected idempotency key %q", *params.IdempotencyKey)
	}
	if _, err := buildRefundParams(RefundRequest{AmountCents: 5000}); err == nil {
		t.Fatal("expected missing payment reference error")
	}
}

func TestStripeGatewayCallsAPI(t *testing.T) {
	var gotCtx context.Context
	ctx := context.WithValue(context.Background(), struct{}{}, "marker")
	gw := &StripeGateway{
		settings: testSettings,
		api: stripeAPI{
			newAccount: func(p *stripe.AccountParams) (*stripe.Account, error) {
				gotCtx = p.Context
				if *p.Type != string(stripe.AccountTypeExpress) {
					t.Fatalf("expected express account, got %s", *p.Type)
				}
				return &stripe.Account{ID: "acct_new"}, nil
			},
			newSession: func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
				return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
			},
			newTransfer: func(p *stripe.TransferParams) (*stripe.Transfer, error) {
				return &stripe.Transfer{ID: "tr_1"}, nil
			},
			newRefund: func(p *stripe.RefundParams) (*stripe.Refund, error) {
				return &stripe.Refund{ID: "re_1"}, nil
			},
		},
	}

	code, err := gw.CreateSubaccount(ctx, models.User{ID: uuid.New(), Email: "seller@example.com"})
	if err != nil || code != "acct_new" {
		t.Fatalf("unexpected subaccount %q %v", code, err)
	}
	if gotCtx != ctx {
		t.Fatal("request context must be forwarded to stripe")
	}

	intent, err := gw.InitializePayment(ctx, PaymentRequest{
		OrderID: uuid.New(),
		Lines:   []PaymentLine{{Name: "Shirt", UnitAmountCents: 100, Quantity: 1}},
	})
	if err != nil || intent.Reference != "cs_1" || intent.AuthorizationURL == "" {
		t.Fatalf("unexpected intent %+v %v", intent, err)
	}

	ref, err := gw.InitiatePayout(ctx, PayoutRequest{LineID: uuid.New(), SubaccountCode: "acct_1", AmountCents: 10})
	if err != nil || ref != "tr_1" {
		t.Fatalf("unexpected payout %q %v", ref, err)
	}
	ref, err = gw.InitiateRefund(ctx, RefundRequest{LineID: uuid.New(), PaymentReference: "pi_1", AmountCents: 10})
	if err != nil || ref != "re_1" {
		t.Fatalf("unexpected refund %q %v", ref, err)
	}
}

func TestStripeGatewayInvalidRequestIsPermanent(t *testing.T) {
	calls := 0
	gw := &StripeGateway{
		settings: testSettings,
		api: stripeAPI{
			newTransfer: func(p *stripe.TransferParams) (*stripe.Transfer, error) {
				calls++
				return nil, &stripe.Error{HTTPStatusCode: 400, Msg: "insufficient platform balance"}
			},
		},
	}
	policy := retry.Policy{Attempts: 3, Backoff: func(int) time.Duration { return 0 }}
	err := policy.Do(context.Background(), func(ctx context.Context, _ int) error {
		_, err := gw.InitiatePayout(ctx, PayoutRequest{LineID: uuid.New(), SubaccountCode: "acct_1", AmountCents: 10})
		return err
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for a 4xx, got %d", calls)
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatal("permanent errors must not be reported as exhausted")
	}
}

func TestStripeGatewayServerErrorIsRetried(t *testing.T) {
	calls := 0
	gw := &StripeGateway{
		settings: testSettings,
		api: stripeAPI{
			newRefund: func(p *stripe.RefundParams) (*stripe.Refund, error) {
				calls++
				return nil, &stripe.Error{HTTPStatusCode: 503, Msg: "unavailable"}
			},
		},
	}
	policy := retry.Policy{Attempts: 3, Backoff: func(int) time.Duration { return 0 }}
	err := policy.Do(context.Background(), func(ctx context.Context, _ int) error {
		_, err := gw.InitiateRefund(ctx, RefundRequest{LineID: uuid.New(), PaymentReference: "pi_1", AmountCents: 10})
		return err
	})
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) || calls != 3 {
		t.Fatalf("expected 3 attempts and exhaustion, got %d calls err=%v", calls, err)
	}
}
