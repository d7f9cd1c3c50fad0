package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Repository issues the conditional listing updates used for stock reservation.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the listing repository to a GORM connection.
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

// DecrementIfAvailable takes qty units from a verified, unsold listing with
// enough stock. It returns the affected row count; zero means the guard failed.
func (r *Repository) DecrementIfAvailable(ctx context.Context, productID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND verification_status = ? AND is_sold = ? AND inventory >= ?",
			productID, enums.VerificationStatusVerified, false, qty).
		Updates(map[string]any{
			"inventory":   gorm.Expr("inventory - ?", qty),
			"order_count": gorm.Expr("order_count + 1"),
			"is_sold":     gorm.Expr("inventory - ? = 0", qty),
		})
	return res.RowsAffected, res.Error
}

// Increment returns qty units to a listing and clears its sold flag.
func (r *Repository) Increment(ctx context.Context, productID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"inventory": gorm.Expr("inventory + ?", qty),
			"is_sold":   false,
		})
	return res.RowsAffected, res.Error
}

// MarkSoldIfExhausted flips is_sold once a listing has no stock left.
func (r *Repository) MarkSoldIfExhausted(ctx context.Context, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND inventory = 0 AND is_sold = ?", productID, false).
		Update("is_sold", true).Error
}

// FindByIDs loads listings by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Listing, error) {
	var rows []models.Listing
	if len(ids) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}
