package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// TransactionItem tracks payout and refund of a single order line.
type TransactionItem struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID   uuid.UUID          `gorm:"column:transaction_id;type:uuid;not null;index"`
	OrderLineID     uuid.UUID          `gorm:"column:order_line_id;type:uuid;not null;uniqueIndex"`
	SellerID        uuid.UUID          `gorm:"column:seller_id;type:uuid;not null"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	PayoutStatus    enums.PayoutStatus `gorm:"column:payout_status;type:payout_status;not null;default:'pending'"`
	PayoutReference *string            `gorm:"column:payout_reference"`
	PayoutCents     int64              `gorm:"column:payout_cents;not null;default:0"`
	RefundStatus    enums.RefundStatus `gorm:"column:refund_status;type:refund_status;not null;default:'none'"`
	RefundReference *string            `gorm:"column:refund_reference"`
	RefundedCents   int64              `gorm:"column:refunded_cents;not null;default:0"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *TransactionItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
