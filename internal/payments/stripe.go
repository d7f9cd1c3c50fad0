package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/transfer"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
	pkgstripe "github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

const deliveryFeeLineName = "Delivery fee"

// stripeAPI holds the Stripe resource calls so tests can replace them.
type stripeAPI struct {
	newAccount  func(*stripe.AccountParams) (*stripe.Account, error)
	newSession  func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newTransfer func(*stripe.TransferParams) (*stripe.Transfer, error)
	newRefund   func(*stripe.RefundParams) (*stripe.Refund, error)
}

func defaultStripeAPI() stripeAPI {
	return stripeAPI{
		newAccount:  account.New,
		newSession:  session.New,
		newTransfer: transfer.New,
		newRefund:   refund.New,
	}
}

// StripeGateway implements Gateway over Stripe Connect: Express accounts for
// sellers, Checkout Sessions for buyers, Transfers for payouts and Refunds.
type StripeGateway struct {
	settings pkgstripe.Settings
	api      stripeAPI
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway builds the adapter from an initialized Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeGateway{settings: client.Settings(), api: defaultStripeAPI()}, nil
}

func (g *StripeGateway) CreateSubaccount(ctx context.Context, seller models.User) (string, error) {
	params := buildAccountParams(g.settings, seller)
	params.Context = ctx
	acct, err := g.api.newAccount(params)
	if err != nil {
		return "", classifyStripeError("create connected account", err)
	}
	return acct.ID, nil
}

func (g *StripeGateway) InitializePayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error) {
	params, err := buildCheckoutParams(g.settings, req)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	params.Context = ctx
	sess, err := g.api.newSession(params)
	if err != nil {
		return nil, classifyStripeError("create checkout session", err)
	}
	return &PaymentIntent{AuthorizationURL: sess.URL, Reference: sess.ID}, nil
}

func (g *StripeGateway) InitiatePayout(ctx context.Context, req PayoutRequest) (string, error) {
	params, err := buildTransferParams(g.settings, req)
	if err != nil {
		return "", retry.Permanent(err)
	}
	params.Context = ctx
	tr, err := g.api.newTransfer(params)
	if err != nil {
		return "", classifyStripeError("create transfer", err)
	}
	return tr.ID, nil
}

func (g *StripeGateway) InitiateRefund(ctx context.Context, req RefundRequest) (string, error) {
	params, err := buildRefundParams(req)
	if err != nil {
		return "", retry.Permanent(err)
	}
	params.Context = ctx
	rf, err := g.api.newRefund(params)
	if err != nil {
		return "", classifyStripeError("create refund", err)
	}
	return rf.ID, nil
}

func buildAccountParams(settings pkgstripe.Settings, seller models.User) *stripe.AccountParams {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(settings.AccountCountry),
		Email:   stripe.String(seller.Email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.AddMetadata("seller_id", seller.ID.String())
	params.SetIdempotencyKey("subaccount:" + seller.ID.String())
	return params
}

func buildCheckoutParams(settings pkgstripe.Settings, req PaymentRequest) (*stripe.CheckoutSessionParams, error) {
	if len(req.Lines) == 0 {
		return nil, errors.New("payment requires at least one line")
	}
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines)+1)
	for _, line := range req.Lines {
		if line.UnitAmountCents <= 0 || line.Quantity <= 0 {
			return nil, fmt.Errorf("invalid payment line %q", line.Name)
		}
		items = append(items, checkoutLineItem(settings.Currency, line.Name, line.UnitAmountCents, line.Quantity))
	}
	if req.DeliveryFeeCents > 0 {
		items = append(items, checkoutLineItem(settings.Currency, deliveryFeeLineName, req.DeliveryFeeCents, 1))
	}

	orderID := req.OrderID.String()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(orderID),
		LineItems:         items,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			TransferGroup: stripe.String(orderID),
		},
	}
	if email := strings.TrimSpace(req.PayerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if settings.SuccessURL != "" {
		params.SuccessURL = stripe.String(settings.SuccessURL)
	}
	if settings.CancelURL != "" {
		params.CancelURL = stripe.String(settings.CancelURL)
	}
	params.AddMetadata("order_id", orderID)
	params.SetIdempotencyKey("payment:" + orderID)
	return params, nil
}

func checkoutLineItem(currency, name string, unitAmount, quantity int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(quantity),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(unitAmount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
	}
}

func buildTransferParams(settings pkgstripe.Settings, req PayoutRequest) (*stripe.TransferParams, error) {
	if strings.TrimSpace(req.SubaccountCode) == "" {
		return nil, errors.New("payout subaccount required")
	}
	if req.AmountCents <= 0 {
		return nil, errors.New("payout amount must be positive")
	}
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(settings.Currency),
		Destination:   stripe.String(req.SubaccountCode),
		TransferGroup: stripe.String(req.OrderID.String()),
	}
	params.AddMetadata("order_id", req.OrderID.String())
	params.AddMetadata("order_line_id", req.LineID.String())
	params.AddMetadata("transaction_id", req.TransactionID.String())
	params.SetIdempotencyKey(PayoutIdempotencyKey(req.LineID))
	return params, nil
}

func buildRefundParams(req RefundRequest) (*stripe.RefundParams, error) {
	if strings.TrimSpace(req.PaymentReference) == "" {
		return nil, errors.New("refund requires a settled payment reference")
	}
	if req.AmountCents <= 0 {
		return nil, errors.New("refund amount must be positive")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentReference),
		Amount:        stripe.Int64(req.AmountCents),
	}
	params.AddMetadata("order_id", req.OrderID.String())
	params.AddMetadata("order_line_id", req.LineID.String())
	params.AddMetadata("product_id", req.ProductID.String())
	params.SetIdempotencyKey(RefundIdempotencyKey(req.LineID))
	return params, nil
}

// classifyStripeError marks client errors Stripe will reject again as permanent.
func classifyStripeError(op string, err error) error {
	wrapped := fmt.Errorf("stripe %s: %w", op, err)
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		status := stripeErr.HTTPStatusCode
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError &&
			status != http.StatusConflict && status != http.StatusTooManyRequests {
			return retry.Permanent(wrapped)
		}
	}
	return wrapped
}
