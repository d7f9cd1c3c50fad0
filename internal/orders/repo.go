package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Repository persists orders and their lines.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the order together with its lines.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, r.db, id)
}

// FindByIDForUpdate loads the order and, on Postgres, row-locks it until the
// surrounding transaction ends so concurrent mutations of one order serialize.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := r.db
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(ctx, query, id)
}

func (r *Repository) find(ctx context.Context, query *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := query.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) UpdateLine(ctx context.Context, lineID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("id = ?", lineID).
		Updates(updates).Error
}

// LockCancelledLines takes the same order row lock as FindByIDForUpdate and
// returns the order's cancelled lines.
func (r *Repository) LockCancelledLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.OrderLine, error) {
	order, err := r.WithTx(tx).FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var cancelled []models.OrderLine
	for _, line := range order.Lines {
		if line.Cancelled || line.Status == enums.LineStatusCancelled {
			cancelled = append(cancelled, line)
		}
	}
	return cancelled, nil
}

// MarkLineRefundPending flags a cancelled line whose refund was requested
// after the order was paid.
func (r *Repository) MarkLineRefundPending(ctx context.Context, tx *gorm.DB, lineID uuid.UUID) error {
	return r.WithTx(tx).UpdateLine(ctx, lineID, map[string]any{"refund_status": enums.RefundStatusPending})
}

// MarkLineRefunded records a gateway-confirmed refund on the line.
func (r *Repository) MarkLineRefunded(ctx context.Context, tx *gorm.DB, lineID uuid.UUID, refundedCents int64) error {
	res := r.WithTx(tx).db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{
			"refund_status":  enums.RefundStatusCompleted,
			"refunded_cents": refundedCents,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindUnpaidBefore returns orders placed before cutoff whose payment never
// settled and that still hold at least one pending line.
func (r *Repository) FindUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Joins("JOIN transactions ON transactions.id = orders.transaction_id").
		Where("transactions.status = ?", enums.TransactionStatusPending).
		Where("orders.created_at < ?", cutoff).
		Where("EXISTS (SELECT 1 FROM order_lines WHERE order_lines.order_id = orders.id AND order_lines.status = ? AND order_lines.cancelled = ?)",
			enums.LineStatusPending, false).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("orders.created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
