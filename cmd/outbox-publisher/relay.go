package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	goretry "github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	maxIdleBackoff = 10 * time.Second
	backoffJitter  = 250 * time.Millisecond
)

type unitOfWork interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(ctx context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

type outboxRows interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error
	Park(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sender is the narrow publish surface; tests swap it for a recorder.
type sender interface {
	Send(ctx context.Context, msg *gcppubsub.Message) error
}

type senderFor func(topic string) sender

// outcome is what happened to one outbox row during a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

type RelayParams struct {
	Config    config.OutboxConfig
	Logger    *logger.Logger
	DB        unitOfWork
	Topics    topicSource
	Rows      outboxRows
	Resolver  eventResolver
	SenderFor senderFor
}

// Relay moves committed outbox rows onto Pub/Sub. Delivery is at least once;
// consumers dedupe on the envelope event id.
type Relay struct {
	logg        *logger.Logger
	db          unitOfWork
	topics      topicSource
	rows        outboxRows
	resolver    eventResolver
	senderFor   senderFor
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Topics == nil:
		return nil, errors.New("pubsub client is required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case p.Resolver == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		topics:      p.Topics,
		rows:        p.Rows,
		resolver:    p.Resolver,
		senderFor:   p.SenderFor,
		batchSize:   positiveOr(p.Config.BatchSize, 50),
		maxAttempts: positiveOr(p.Config.MaxAttempts, 10),
		poll:        time.Duration(positiveOr(p.Config.PollIntervalMS, 500)) * time.Millisecond,
	}
	if r.senderFor == nil {
		r.senderFor = func(topic string) sender {
			if pub := p.Topics.Publisher(topic); pub != nil {
				return gcpSender{pub}
			}
			return nil
		}
	}
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains the outbox until ctx ends. Idle polls wait the configured
// interval; failed batches back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	if err := r.topics.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub not ready: %w", err)
	}

	backoff := r.newBackoff()
	for ctx.Err() == nil {
		drained, err := r.drainOnce(ctx)
		wait := time.Duration(0)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait, _ = backoff.Next()
		case drained == 0:
			backoff = r.newBackoff()
			wait = r.poll
		default:
			backoff = r.newBackoff()
		}
		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (r *Relay) newBackoff() goretry.Backoff {
	b := goretry.NewExponential(r.poll)
	b = goretry.WithJitter(backoffJitter, b)
	return goretry.WithCappedDuration(maxIdleBackoff, b)
}

// drainOnce claims one batch and settles every row in it. A row that fails
// to publish is marked on its own; the rest of the batch still goes out.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	var claimed int
	err := r.db.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		events, err := r.rows.ClaimPending(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			if err := r.settle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	result, cause := r.deliver(logCtx, event)
	switch result {
	case outcomePublished:
		if err := r.rows.MarkPublished(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox publish failed, will retry")
		if err := r.rows.RecordFailure(tx, event.ID, cause); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
	case outcomeParked:
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox event parked")
		if err := r.rows.Park(tx, event.ID, cause, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

// deliver publishes one row and classifies the result.
func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) (outcome, error) {
	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return outcomeParked, err
	}
	topic := resolved.Descriptor.Topic
	out := r.senderFor(topic)
	if out == nil {
		return outcomeParked, fmt.Errorf("no publisher for topic %s", topic)
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = out.Send(sendCtx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err == nil {
		return outcomePublished, nil
	}

	var permanent registry.NonRetryableError
	if errors.As(err, &permanent) {
		return outcomeParked, err
	}
	if event.AttemptCount+1 >= r.maxAttempts {
		return outcomeParked, fmt.Errorf("giving up after %d attempts: %w", event.AttemptCount+1, err)
	}
	return outcomeRetry, err
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type gcpSender struct {
	pub *gcppubsub.Publisher
}

func (s gcpSender) Send(ctx context.Context, msg *gcppubsub.Message) error {
	_, err := s.pub.Publish(ctx, msg).Get(ctx)
	return err
}
