package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// OrderLine is one seller's item inside an order. Position is the zero-based
// index clients use to address the line.
type OrderLine struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_order_lines_position,priority:1"`
	Position      int                `gorm:"column:position;not null;uniqueIndex:ux_order_lines_position,priority:2"`
	SellerID      uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index"`
	ProductID     uuid.UUID          `gorm:"column:product_id;type:uuid;not null"`
	Name          string             `gorm:"column:name;not null"`
	Color         string             `gorm:"column:color;not null"`
	Size          *string            `gorm:"column:size"`
	PriceCents    int64              `gorm:"column:price_cents;not null"`
	Quantity      int                `gorm:"column:quantity;not null"`
	Status        enums.LineStatus   `gorm:"column:status;type:line_status;not null;default:'pending'"`
	Cancelled     bool               `gorm:"column:cancelled;not null;default:false"`
	RefundStatus  enums.RefundStatus `gorm:"column:refund_status;type:refund_status;not null;default:'none'"`
	RefundedCents int64              `gorm:"column:refunded_cents;not null;default:0"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// SubtotalCents is price times quantity.
func (l OrderLine) SubtotalCents() int64 {
	return l.PriceCents * int64(l.Quantity)
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
