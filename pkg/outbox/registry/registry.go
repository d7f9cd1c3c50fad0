// Package registry knows which outbox event types exist, which aggregate
// each belongs to, where it is published and how its payload decodes.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError { return NonRetryableError{Err: err} }

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type Descriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

type ResolvedEvent struct {
	Descriptor Descriptor
	Envelope   outbox.Envelope
	Payload    any
}

type route struct {
	aggregate enums.OutboxAggregateType
	decode    func(json.RawMessage) (any, error)
}

func decodeAs[T any]() func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

var routes = map[enums.OutboxEventType]route{
	enums.EventOrderPlaced:       {enums.AggregateOrder, decodeAs[payloads.OrderPlacedEvent]()},
	enums.EventLineStatusChanged: {enums.AggregateOrder, decodeAs[payloads.LineStatusChangedEvent]()},
	enums.EventLineCancelled:     {enums.AggregateOrder, decodeAs[payloads.LineCancelledEvent]()},
	enums.EventPayoutInitiated:   {enums.AggregateTransaction, decodeAs[payloads.PayoutInitiatedEvent]()},
	enums.EventRefundInitiated:   {enums.AggregateTransaction, decodeAs[payloads.RefundInitiatedEvent]()},
	enums.EventPaymentSettled:    {enums.AggregateTransaction, decodeAs[payloads.PaymentSettledEvent]()},
	enums.EventRefundCompleted:   {enums.AggregateTransaction, decodeAs[payloads.RefundCompletedEvent]()},
}

// EventRegistry routes every order lifecycle event to the orders topic.
type EventRegistry struct {
	topic string
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	return &EventRegistry{topic: cfg.OrdersTopic}, nil
}

func (r *EventRegistry) Supports(eventType enums.OutboxEventType) bool {
	_, ok := routes[eventType]
	return ok
}

// Resolve validates a stored row and decodes its typed payload. Every failure
// is non-retryable: the row will not get better by waiting.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	rt, ok := routes[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case rt.aggregate != event.AggregateType:
		return nil, permanent("%s belongs to %s aggregates, row says %s", event.EventType, rt.aggregate, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("%s row has no aggregate id", event.EventType)
	}

	env, err := outbox.OpenEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("open envelope: %w", err)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("%s envelope carries no data", event.EventType)
	}
	payload, err := rt.decode(env.Data)
	if err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{
		Descriptor: Descriptor{EventType: event.EventType, AggregateType: rt.aggregate, Topic: r.topic},
		Envelope:   env,
		Payload:    payload,
	}, nil
}
