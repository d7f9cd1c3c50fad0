package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Order is a buyer's multi-seller purchase. TotalCents and Status are derived
// from the lines and are recomputed on every line mutation.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID       uuid.UUID             `gorm:"column:customer_id;type:uuid;not null;index"`
	TotalCents       int64                 `gorm:"column:total_cents;not null"`
	DeliveryFeeCents int64                 `gorm:"column:delivery_fee_cents;not null;default:0"`
	Status           enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'pending'"`
	DeliveryAddress  types.DeliveryAddress `gorm:"column:delivery_address;type:jsonb;serializer:json;not null"`
	TransactionID    *uuid.UUID            `gorm:"column:transaction_id;type:uuid"`
	CommissionBPS    int                   `gorm:"column:commission_bps;not null"`
	Lines            []OrderLine           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
