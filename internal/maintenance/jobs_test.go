package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return fn(ctx, nil)
}

type fakeOutboxPurger struct {
	cutoff time.Time
	rows   int64
	err    error
}

func (f *fakeOutboxPurger) PurgePublished(_ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.rows, f.err
}

type fakeNotificationPurger struct {
	cutoff time.Time
	rows   int64
}

func (f *fakeNotificationPurger) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.rows, nil
}

var fixedNow = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func TestOutboxRetentionUsesRetentionWindow(t *testing.T) {
	repo := &fakeOutboxPurger{rows: 7}
	job, err := NewOutboxRetentionJob(passthroughTx{}, repo, 14)
	require.NoError(t, err)
	job.now = func() time.Time { return fixedNow }

	rows, err := job.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 7, rows)
	require.Equal(t, fixedNow.Add(-14*24*time.Hour), repo.cutoff)
}

func TestOutboxRetentionPropagatesErrors(t *testing.T) {
	job, err := NewOutboxRetentionJob(passthroughTx{}, &fakeOutboxPurger{err: errors.New("locked")}, 0)
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	require.Error(t, err)
}

func TestNotificationCleanupDefaultsRetention(t *testing.T) {
	repo := &fakeNotificationPurger{rows: 2}
	job, err := NewNotificationCleanupJob(repo, 0)
	require.NoError(t, err)
	job.now = func() time.Time { return fixedNow }

	rows, err := job.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, rows)
	require.Equal(t, fixedNow.Add(-defaultRetentionDays*24*time.Hour), repo.cutoff)
}

type fakeFinder struct {
	cutoff time.Time
	orders []models.Order
}

func (f *fakeFinder) FindUnpaidBefore(_ context.Context, cutoff time.Time, _ int) ([]models.Order, error) {
	f.cutoff = cutoff
	return f.orders, nil
}

type fakeCanceller struct {
	calls []orders.CancelLineInput
	errs  map[uuid.UUID]error
}

func (f *fakeCanceller) CancelLine(_ context.Context, input orders.CancelLineInput) (*models.Order, error) {
	f.calls = append(f.calls, input)
	return nil, f.errs[input.LineID]
}

func TestUnpaidOrderExpiryCancelsPendingLinesAsBuyer(t *testing.T) {
	buyer := uuid.New()
	pending := models.OrderLine{ID: uuid.New(), Status: enums.LineStatusPending}
	raced := models.OrderLine{ID: uuid.New(), Status: enums.LineStatusPending}
	shipped := models.OrderLine{ID: uuid.New(), Status: enums.LineStatusShipped}
	cancelled := models.OrderLine{ID: uuid.New(), Status: enums.LineStatusCancelled, Cancelled: true}
	order := models.Order{ID: uuid.New(), CustomerID: buyer, Lines: []models.OrderLine{pending, raced, shipped, cancelled}}

	finder := &fakeFinder{orders: []models.Order{order}}
	canceller := &fakeCanceller{errs: map[uuid.UUID]error{
		raced.ID: pkgerrors.New(pkgerrors.CodeConflict, "only pending items can be cancelled"),
	}}
	job, err := NewUnpaidOrderExpiryJob(UnpaidOrderParams{
		Logger: logger.Nop(),
		Finder: finder,
		Orders: canceller,
		TTL:    48 * time.Hour,
	})
	require.NoError(t, err)
	job.now = func() time.Time { return fixedNow }

	expired, err := job.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)
	require.Equal(t, fixedNow.Add(-48*time.Hour), finder.cutoff)
	require.Len(t, canceller.calls, 2)
	for _, call := range canceller.calls {
		require.Equal(t, buyer, call.Actor.UserID)
		require.Equal(t, enums.UserRoleBuyer, call.Actor.Role)
		require.Equal(t, order.ID, call.OrderID)
	}
}

func TestUnpaidOrderExpiryAggregatesFailures(t *testing.T) {
	first := models.Order{ID: uuid.New(), CustomerID: uuid.New(), Lines: []models.OrderLine{{ID: uuid.New(), Status: enums.LineStatusPending}}}
	second := models.Order{ID: uuid.New(), CustomerID: uuid.New(), Lines: []models.OrderLine{{ID: uuid.New(), Status: enums.LineStatusPending}}}
	canceller := &fakeCanceller{errs: map[uuid.UUID]error{
		first.Lines[0].ID: pkgerrors.New(pkgerrors.CodeDependency, "db down"),
	}}
	job, err := NewUnpaidOrderExpiryJob(UnpaidOrderParams{
		Logger: logger.Nop(),
		Finder: &fakeFinder{orders: []models.Order{first, second}},
		Orders: canceller,
		TTL:    time.Hour,
	})
	require.NoError(t, err)

	expired, err := job.Run(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 1, expired)
	require.Len(t, canceller.calls, 2)
}

func TestNewUnpaidOrderExpiryJobValidates(t *testing.T) {
	_, err := NewUnpaidOrderExpiryJob(UnpaidOrderParams{Logger: logger.Nop(), Finder: &fakeFinder{}, Orders: &fakeCanceller{}})
	require.Error(t, err)
}
