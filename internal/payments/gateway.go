package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// Gateway is the payment processor surface the order lifecycle depends on.
// Amounts are integer minor units of the platform currency.
type Gateway interface {
	// CreateSubaccount provisions a connected payout account for seller and
	// returns its code.
	CreateSubaccount(ctx context.Context, seller models.User) (string, error)
	InitializePayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error)
	// InitiatePayout transfers proceeds of one line to the seller's subaccount
	// and returns the transfer reference.
	InitiatePayout(ctx context.Context, req PayoutRequest) (string, error)
	// InitiateRefund refunds one line against the settled buyer payment and
	// returns the refund reference.
	InitiateRefund(ctx context.Context, req RefundRequest) (string, error)
}

// PaymentLine is one purchasable line on the hosted payment page.
type PaymentLine struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

type PaymentRequest struct {
	OrderID          uuid.UUID
	PayerEmail       string
	Lines            []PaymentLine
	DeliveryFeeCents int64
}

// AmountCents is the total charged to the payer.
func (r PaymentRequest) AmountCents() int64 {
	total := r.DeliveryFeeCents
	for _, line := range r.Lines {
		total += line.UnitAmountCents * line.Quantity
	}
	return total
}

// PaymentIntent is what the buyer needs to complete payment.
type PaymentIntent struct {
	AuthorizationURL string
	Reference        string
}

type PayoutRequest struct {
	TransactionID  uuid.UUID
	LineID         uuid.UUID
	OrderID        uuid.UUID
	SubaccountCode string
	AmountCents    int64
}

type RefundRequest struct {
	OrderID          uuid.UUID
	ProductID        uuid.UUID
	LineID           uuid.UUID
	PaymentReference string
	AmountCents      int64
}

// PayoutIdempotencyKey is stable per line so repeated attempts never transfer twice.
func PayoutIdempotencyKey(lineID uuid.UUID) string {
	return "payout:" + lineID.String()
}

// RefundIdempotencyKey is stable per line so repeated attempts never refund twice.
func RefundIdempotencyKey(lineID uuid.UUID) string {
	return "refund:" + lineID.String()
}
