package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Reservation asks for qty units of one listing.
type Reservation struct {
	ProductID uuid.UUID
	Quantity  int
}

// Coordinator reserves and restores listing stock inside a caller-owned transaction.
type Coordinator struct {
	repo *Repository
}

// NewCoordinator builds a coordinator over the listing repository.
func NewCoordinator(repo *Repository) *Coordinator {
	return &Coordinator{repo: repo}
}

// Reserve decrements stock for every request in order. The first request whose
// guard fails returns a conflict naming the product; the caller must abort tx so
// earlier decrements roll back with it.
func (c *Coordinator) Reserve(ctx context.Context, tx *gorm.DB, requests []Reservation) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "reservation requires a transaction")
	}
	if len(requests) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one reservation is required")
	}
	repo := c.repo.WithTx(tx)
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if req.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"productId": req.ProductID.String()})
		}
		affected, err := repo.DecrementIfAvailable(ctx, req.ProductID, req.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve inventory")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("product %s is unavailable or has insufficient inventory", req.ProductID)).
				WithDetails(map[string]any{"productId": req.ProductID.String(), "requested": req.Quantity})
		}
	}
	return nil
}

// Restore returns qty units to a listing and marks it unsold.
func (c *Coordinator) Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "restore requires a transaction")
	}
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	affected, err := c.repo.WithTx(tx).Increment(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore inventory")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConsistency, fmt.Sprintf("listing %s missing while restoring inventory", productID)).
			WithDetails(map[string]any{"productId": productID.String()})
	}
	return nil
}

// MarkSoldIfExhausted flags a listing sold when its stock reached zero.
func (c *Coordinator) MarkSoldIfExhausted(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	if err := c.repo.WithTx(tx).MarkSoldIfExhausted(ctx, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark listing sold")
	}
	return nil
}
