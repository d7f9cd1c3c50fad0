package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const defaultUnpaidBatch = 100

type unpaidOrderFinder interface {
	FindUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type lineCanceller interface {
	CancelLine(ctx context.Context, input orders.CancelLineInput) (*models.Order, error)
}

type UnpaidOrderParams struct {
	Logger    *logger.Logger
	Finder    unpaidOrderFinder
	Orders    lineCanceller
	TTL       time.Duration
	BatchSize int
}

// UnpaidOrderExpiryJob cancels the pending lines of orders whose checkout was
// never paid within TTL. Cancellation goes through the order service on the
// buyer's behalf so stock, counters and outbox events follow the normal path.
type UnpaidOrderExpiryJob struct {
	logg   *logger.Logger
	finder unpaidOrderFinder
	orders lineCanceller
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func NewUnpaidOrderExpiryJob(params UnpaidOrderParams) (*UnpaidOrderExpiryJob, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Finder == nil:
		return nil, fmt.Errorf("unpaid order finder required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case params.TTL <= 0:
		return nil, fmt.Errorf("unpaid order ttl must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultUnpaidBatch
	}
	return &UnpaidOrderExpiryJob{
		logg:   params.Logger,
		finder: params.Finder,
		orders: params.Orders,
		ttl:    params.TTL,
		batch:  batch,
		now:    time.Now,
	}, nil
}

func (j *UnpaidOrderExpiryJob) Name() string { return "unpaid-order-expiry" }

func (j *UnpaidOrderExpiryJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.finder.FindUnpaidBefore(ctx, cutoff, j.batch)
	if err != nil {
		return 0, fmt.Errorf("find unpaid orders: %w", err)
	}

	var (
		expired int64
		errs    error
	)
	for _, order := range stale {
		actor := orders.Actor{UserID: order.CustomerID, Role: enums.UserRoleBuyer}
		for _, line := range order.Lines {
			if line.Cancelled || line.Status != enums.LineStatusPending {
				continue
			}
			_, err := j.orders.CancelLine(ctx, orders.CancelLineInput{
				Actor:   actor,
				OrderID: order.ID,
				LineID:  line.ID,
			})
			switch {
			case err == nil:
				expired++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				// a concurrent request moved the line on; nothing to expire
			default:
				errs = multierr.Append(errs, fmt.Errorf("expire line %s of order %s: %w", line.ID, order.ID, err))
			}
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"orders":  len(stale),
		"expired": expired,
	})
	j.logg.Info(logCtx, "unpaid order sweep complete")
	return expired, errs
}
