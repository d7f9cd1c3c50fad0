// Package app assembles the order lifecycle services shared by the API server
// and the background workers.
package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-backend/internal/dispatch"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/internal/ledger"
	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/mailer"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
	pkgstripe "github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

// OrderStack is the wired order lifecycle. Callers must Wait on Dispatcher
// before exiting so post-commit notifications drain.
type OrderStack struct {
	Orders        orders.Service
	OrdersRepo    *orders.Repository
	Notifications notifications.Service
	NotifyRepo    notifications.Repository
	LedgerRepo    ledger.Repository
	Ledger        ledger.Service
	Outbox        *outbox.Service
	OutboxRepo    *outbox.Repository
	Dispatcher    *dispatch.Dispatcher
	Stripe        *pkgstripe.Client
	Gateway       payments.Gateway
	Metrics       *metrics.OrderMetrics
}

func NewOrderStack(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*OrderStack, error) {
	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}
	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return nil, err
	}

	conn := dbClient.DB()
	orderMetrics := metrics.NewOrderMetrics(reg)

	notifyRepo := notifications.NewRepository(conn)
	notificationService, err := notifications.NewService(notifyRepo)
	if err != nil {
		return nil, err
	}

	policy := retry.NewPolicy(cfg.Orders.RetryAttempts, cfg.Orders.RetryBaseDelay)
	dispatchParams := dispatch.Params{
		Notifier: notificationService,
		Policy:   policy,
		Metrics:  orderMetrics,
		Logger:   logg,
		Timeout:  cfg.Orders.DispatchTimeout,
	}
	if mail, err := mailer.New(cfg.Sendgrid); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "email delivery disabled")
	} else {
		dispatchParams.Mailer = mail
	}
	dispatcher, err := dispatch.New(dispatchParams)
	if err != nil {
		return nil, err
	}

	ledgerRepo := ledger.NewRepository(conn)
	ledgerService, err := ledger.NewService(ledgerRepo)
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(conn)
	outboxService := outbox.NewService(outboxRepo, logg)
	ordersRepo := orders.NewRepository(conn)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:              ordersRepo,
		Users:             users.NewRepository(conn),
		Listings:          inventory.NewRepository(conn),
		LedgerRepo:        ledgerRepo,
		Ledger:            ledgerService,
		Outbox:            outboxService,
		Gateway:           gateway,
		Dispatcher:        dispatcher,
		TransactionRunner: dbClient,
		Policy:            policy,
		Metrics:           orderMetrics,
		Logger:            logg,
		Config:            cfg.Orders,
		Currency:          cfg.Stripe.Currency,
	})
	if err != nil {
		return nil, err
	}

	return &OrderStack{
		Orders:        ordersService,
		OrdersRepo:    ordersRepo,
		Notifications: notificationService,
		NotifyRepo:    notifyRepo,
		LedgerRepo:    ledgerRepo,
		Ledger:        ledgerService,
		Outbox:        outboxService,
		OutboxRepo:    outboxRepo,
		Dispatcher:    dispatcher,
		Stripe:        stripeClient,
		Gateway:       gateway,
		Metrics:       orderMetrics,
	}, nil
}
