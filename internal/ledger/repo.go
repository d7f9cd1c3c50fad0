package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Repository stores payment transactions, their per-line items and the
// append-only ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindTransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error

	UpdateItem(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindItemByRefundReference(ctx context.Context, reference string) (*models.TransactionItem, error)

	CreateEvent(ctx context.Context, event *models.LedgerEvent) error
	EventExists(ctx context.Context, eventType enums.LedgerEventType, reference string) (bool, error)
	OrderEvents(ctx context.Context, orderID uuid.UUID, types ...enums.LedgerEventType) ([]models.LedgerEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func withItems(db *gorm.DB) *gorm.DB { return db.Preload("Items") }

func column(name string, value any) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where(name+" = ?", value) }
}

// firstMatching loads the single row selected by scopes or returns
// gorm.ErrRecordNotFound.
func firstMatching[T any](ctx context.Context, db *gorm.DB, scopes ...func(*gorm.DB) *gorm.DB) (*T, error) {
	var row T
	if err := db.WithContext(ctx).Scopes(scopes...).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormRepository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *gormRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return firstMatching[models.Transaction](ctx, r.db, withItems, column("id", id))
}

func (r *gormRepository) FindTransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error) {
	return firstMatching[models.Transaction](ctx, r.db, withItems, column("order_id", orderID))
}

func (r *gormRepository) FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return firstMatching[models.Transaction](ctx, r.db, withItems, column("reference", reference))
}

func (r *gormRepository) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).Scopes(column("id", id)).Updates(updates).Error
}

func (r *gormRepository) UpdateItem(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.TransactionItem{}).Scopes(column("id", id)).Updates(updates).Error
}

func (r *gormRepository) FindItemByRefundReference(ctx context.Context, reference string) (*models.TransactionItem, error) {
	return firstMatching[models.TransactionItem](ctx, r.db, column("refund_reference", reference))
}

func (r *gormRepository) CreateEvent(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gormRepository) EventExists(ctx context.Context, eventType enums.LedgerEventType, reference string) (bool, error) {
	var hits []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Scopes(column("type", eventType), column("reference", reference)).
		Limit(1).
		Pluck("id", &hits).Error
	return len(hits) > 0, err
}

// OrderEvents returns an order's ledger in insertion order, optionally
// narrowed to the given types.
func (r *gormRepository) OrderEvents(ctx context.Context, orderID uuid.UUID, types ...enums.LedgerEventType) ([]models.LedgerEvent, error) {
	q := r.db.WithContext(ctx).Scopes(column("order_id", orderID))
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	var events []models.LedgerEvent
	if err := q.Order("created_at ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
