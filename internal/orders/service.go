package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/dispatch"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/internal/ledger"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
)

const defaultCurrency = "usd"

type txRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type sideEffects interface {
	Background(ctx context.Context, msgs []dispatch.Message)
}

// Service runs the order lifecycle: placement, line status transitions and
// line cancellation. Every mutation commits in one unit of work; notifications
// go out after the commit.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
	UpdateLineStatus(ctx context.Context, input UpdateLineStatusInput) (*models.Order, error)
	CancelLine(ctx context.Context, input CancelLineInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
}

type ServiceParams struct {
	Repo              *Repository
	Users             *users.Repository
	Listings          *inventory.Repository
	LedgerRepo        ledger.Repository
	Ledger            ledger.Service
	Outbox            outboxPublisher
	Gateway           payments.Gateway
	Dispatcher        sideEffects
	TransactionRunner txRunner
	// Policy retries gateway calls and is independent of the dispatcher's policy.
	Policy   retry.Policy
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Config   config.OrdersConfig
	Currency string
}

type service struct {
	repo        *Repository
	users       *users.Repository
	listings    *inventory.Repository
	inventory   *inventory.Coordinator
	ledgerRepo  ledger.Repository
	ledger      ledger.Service
	outbox      outboxPublisher
	gateway     payments.Gateway
	dispatcher  sideEffects
	tx          txRunner
	policy      retry.Policy
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	epsilon     decimal.Decimal
	commission  int
	adminEmails []string
	currency    string
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Listings == nil:
		return nil, fmt.Errorf("listings repository required")
	case params.LedgerRepo == nil || params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Dispatcher == nil:
		return nil, fmt.Errorf("side effect dispatcher required")
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}

	epsilon, err := decimal.NewFromString(strings.TrimSpace(params.Config.TotalEpsilon))
	if err != nil || epsilon.IsNegative() {
		return nil, fmt.Errorf("invalid total epsilon %q", params.Config.TotalEpsilon)
	}
	if params.Config.CommissionBPS < 0 || params.Config.CommissionBPS > 10000 {
		return nil, fmt.Errorf("commission must be between 0 and 10000 bps")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	return &service{
		repo:        params.Repo,
		users:       params.Users,
		listings:    params.Listings,
		inventory:   inventory.NewCoordinator(params.Listings),
		ledgerRepo:  params.LedgerRepo,
		ledger:      params.Ledger,
		outbox:      params.Outbox,
		gateway:     params.Gateway,
		dispatcher:  params.Dispatcher,
		tx:          params.TransactionRunner,
		policy:      params.Policy,
		metrics:     params.Metrics,
		logg:        params.Logger,
		epsilon:     epsilon,
		commission:  params.Config.CommissionBPS,
		adminEmails: params.Config.AdminEmails,
		currency:    currency,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	if !canView(order, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order is not visible to this user")
	}
	return order, nil
}

func canView(order *models.Order, actor Actor) bool {
	if actor.Role == enums.UserRoleAdmin || order.CustomerID == actor.UserID {
		return true
	}
	for _, line := range order.Lines {
		if line.SellerID == actor.UserID {
			return true
		}
	}
	return false
}

// callGateway runs a critical gateway call under the retry policy. Exhaustion
// surfaces as an external service error so the enclosing unit of work aborts.
func (s *service) callGateway(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	policy := s.policy
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		logCtx := s.logg.WithFields(ctx, map[string]any{"gateway_call": call, "attempt": attempt})
		s.logg.Warn(logCtx, fmt.Sprintf("gateway call failed, retrying: %v", err))
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		err := fn(ctx)
		s.metrics.IncGatewayAttempt(call, err)
		return err
	})
	if err == nil {
		return nil
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return pkgerrors.Wrap(pkgerrors.CodeExternalService, err, fmt.Sprintf("payment gateway %s failed after %d attempts", call, exhausted.Attempts))
	}
	return pkgerrors.Wrap(pkgerrors.CodeExternalService, err, fmt.Sprintf("payment gateway %s failed", call))
}

// consistencyError builds and loudly logs a broken-invariant error.
func (s *service) consistencyError(ctx context.Context, message string, details map[string]any) error {
	err := pkgerrors.New(pkgerrors.CodeConsistency, message).WithDetails(details)
	fields := map[string]any{"operator_attention": true}
	for k, v := range details {
		fields[k] = v
	}
	s.logg.Error(s.logg.WithFields(ctx, fields), "order consistency violation", err)
	return err
}

func (s *service) observe(operation string, started time.Time, err error) {
	s.metrics.ObserveOperation(operation, err, time.Since(started))
}

// notFoundOr maps a missing row to NOT_FOUND and anything else to a dependency error.
func notFoundOr(err error, notFoundMsg, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

// storeErr keeps typed errors and wraps raw store failures.
func storeErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

// loadTransaction returns the order's payment transaction, or nil when the
// order never got one.
func (s *service) loadTransaction(ctx context.Context, repo ledger.Repository, order *models.Order) (*models.Transaction, error) {
	txn, err := repo.FindTransactionByOrderID(ctx, order.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return txn, nil
}
