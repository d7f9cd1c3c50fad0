// Package dispatch fans out notifications and emails once an order mutation
// has committed. Nothing here can fail the mutation: exhausted retries are
// logged and counted, never returned to the request path.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
)

const (
	kindNotification = "notification"
	kindEmail        = "email"

	defaultTimeout = 30 * time.Second
)

type notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) error
}

type emailSender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// Email is one outgoing plain-text email.
type Email struct {
	Address string
	Subject string
	Body    string
}

// Message is everything sent to one recipient. Either part may be nil.
type Message struct {
	Notification *notifications.NotifyInput
	Email        *Email
}

type Params struct {
	Notifier notifier
	Mailer   emailSender
	Policy   retry.Policy
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	// Timeout bounds a background fan-out.
	Timeout time.Duration
}

type Dispatcher struct {
	notifier notifier
	mailer   emailSender
	policy   retry.Policy
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	timeout  time.Duration
	inflight sync.WaitGroup
}

func New(params Params) (*Dispatcher, error) {
	if params.Notifier == nil {
		return nil, errors.New("notifier required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		notifier: params.Notifier,
		mailer:   params.Mailer,
		policy:   params.Policy,
		metrics:  params.Metrics,
		logg:     params.Logger,
		timeout:  timeout,
	}, nil
}

// Background runs Dispatch on a goroutine detached from the request context.
func (d *Dispatcher) Background(ctx context.Context, msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		_ = d.Dispatch(bgCtx, msgs)
	}()
}

// Wait blocks until every background fan-out has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Dispatch delivers every message concurrently, each part under the retry
// policy. The returned error aggregates what was already logged.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []Message) error {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		all error
	)
	collect := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		all = multierr.Append(all, err)
		mu.Unlock()
	}

	for _, msg := range msgs {
		if msg.Notification != nil {
			input := *msg.Notification
			wg.Add(1)
			go func() {
				defer wg.Done()
				collect(d.deliver(ctx, kindNotification, input.UserID.String(), func(ctx context.Context) error {
					return d.notifier.Notify(ctx, input)
				}))
			}()
		}
		if msg.Email != nil && d.mailer != nil {
			email := *msg.Email
			wg.Add(1)
			go func() {
				defer wg.Done()
				collect(d.deliver(ctx, kindEmail, email.Address, func(ctx context.Context) error {
					return d.mailer.Send(ctx, email.Address, email.Subject, email.Body)
				}))
			}()
		}
	}
	wg.Wait()
	return all
}

func (d *Dispatcher) deliver(ctx context.Context, kind, recipient string, send func(context.Context) error) error {
	err := d.policy.Do(ctx, func(ctx context.Context, _ int) error {
		return send(ctx)
	})
	if err == nil {
		return nil
	}

	err = fmt.Errorf("%s to %s: %w", kind, recipient, err)
	d.metrics.IncSideEffectFailure(kind)
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"side_effect": kind,
		"recipient":   recipient,
	})
	d.logg.Error(logCtx, "post-commit side effect failed", err)
	return err
}
