package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const stripeProvider = "stripe"

type webhookKeyStore interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	WebhookEventKey(provider, eventID string) string
}

// EventGuard remembers processed Stripe event ids so redeliveries are acknowledged without reprocessing.
type EventGuard struct {
	store webhookKeyStore
	ttl   time.Duration
}

func NewEventGuard(store webhookKeyStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("webhook key store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &EventGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true when eventID was already marked.
func (g *EventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookEventKey(stripeProvider, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return !set, nil
}

// Delete releases the mark so a failed event can be redelivered.
func (g *EventGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(stripeProvider, eventID))
}
