// Package webhooks receives provider callbacks.
package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Stripe events are small; anything larger is not ours.
const maxEventBytes = 64 << 10

const signatureHeader = "Stripe-Signature"

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// deliveryGuard remembers event ids so redeliveries are acknowledged without
// being applied twice.
type deliveryGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signer interface {
	SigningSecret() string
}

type stripeReceiver struct {
	svc    StripeWebhookService
	signer signer
	guard  deliveryGuard
	logg   *logger.Logger
}

// StripeWebhook applies checkout settlement and refund events. When applying
// fails the delivery mark is dropped so Stripe's retry gets processed.
func StripeWebhook(svc StripeWebhookService, client signer, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	h := &stripeReceiver{svc: svc, signer: client, guard: guard, logg: logg}
	return h.serve
}

func (h *stripeReceiver) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc == nil || h.signer == nil || h.guard == nil {
		responses.WriteError(ctx, h.logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
		return
	}

	event, err := h.verify(r)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	if h.logg != nil {
		ctx = h.logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})
	}

	seen, err := h.guard.CheckAndMark(ctx, event.ID)
	switch {
	case err != nil:
		responses.WriteError(ctx, h.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedupe"))
		return
	case seen:
		responses.WriteSuccess(w, map[string]bool{"duplicate": true})
		return
	}

	if err := h.svc.HandleEvent(ctx, event); err != nil {
		if relErr := h.guard.Delete(ctx, event.ID); relErr != nil && h.logg != nil {
			h.logg.Error(ctx, "webhook mark not released", relErr)
		}
		responses.WriteError(ctx, h.logg, w, err)
		return
	}

	if h.logg != nil {
		h.logg.Info(ctx, "stripe event applied")
	}
	responses.WriteSuccess(w, map[string]bool{"received": true})
}

func (h *stripeReceiver) verify(r *http.Request) (*stripe.Event, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body")
	}
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, h.signer.SigningSecret(),
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe signature rejected")
	}
	return &event, nil
}
