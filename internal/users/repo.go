package users

import (
	"context"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes the user reads and counter updates the order lifecycle needs.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs loads every user in ids, keyed by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ListAdmins returns every account holding the admin role.
func (r *Repository) ListAdmins(ctx context.Context) ([]models.User, error) {
	var rows []models.User
	err := r.db.WithContext(ctx).
		Where("role = ?", enums.UserRoleAdmin).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// SetPayoutSubaccount stores the gateway subaccount code unless one is already present.
func (r *Repository) SetPayoutSubaccount(ctx context.Context, id uuid.UUID, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND payout_subaccount_code IS NULL", id).
		UpdateColumn("payout_subaccount_code", code).Error
}

// CounterDelta is a relative change applied to one user's order counters.
type CounterDelta struct {
	Pending      int
	Completed    int
	Failed       int
	BalanceCents int64
}

// IsZero reports whether the delta changes nothing.
func (d CounterDelta) IsZero() bool {
	return d.Pending == 0 && d.Completed == 0 && d.Failed == 0 && d.BalanceCents == 0
}

// Add merges two deltas.
func (d CounterDelta) Add(other CounterDelta) CounterDelta {
	return CounterDelta{
		Pending:      d.Pending + other.Pending,
		Completed:    d.Completed + other.Completed,
		Failed:       d.Failed + other.Failed,
		BalanceCents: d.BalanceCents + other.BalanceCents,
	}
}

// ApplyCounters applies delta to the user's counters. The pending counter never
// drops below zero.
func (r *Repository) ApplyCounters(ctx context.Context, id uuid.UUID, delta CounterDelta) error {
	if delta.IsZero() {
		return nil
	}
	updates := map[string]any{}
	if delta.Pending != 0 {
		updates["pending_orders_count"] = gorm.Expr(
			"CASE WHEN pending_orders_count + ? < 0 THEN 0 ELSE pending_orders_count + ? END",
			delta.Pending, delta.Pending,
		)
	}
	if delta.Completed != 0 {
		updates["completed_orders_count"] = gorm.Expr("completed_orders_count + ?", delta.Completed)
	}
	if delta.Failed != 0 {
		updates["failed_orders_count"] = gorm.Expr("failed_orders_count + ?", delta.Failed)
	}
	if delta.BalanceCents != 0 {
		updates["balance_cents"] = gorm.Expr("balance_cents + ?", delta.BalanceCents)
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
