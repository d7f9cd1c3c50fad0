package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// User holds the account fields the order lifecycle reads and the counters it maintains.
type User struct {
	ID                   uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email                string         `gorm:"column:email;not null;uniqueIndex"`
	Name                 string         `gorm:"column:name;not null"`
	Role                 enums.UserRole `gorm:"column:role;type:user_role;not null;default:'buyer'"`
	PayoutSubaccountCode *string        `gorm:"column:payout_subaccount_code"`
	PendingOrdersCount   int            `gorm:"column:pending_orders_count;not null;default:0"`
	CompletedOrdersCount int            `gorm:"column:completed_orders_count;not null;default:0"`
	FailedOrdersCount    int            `gorm:"column:failed_orders_count;not null;default:0"`
	BalanceCents         int64          `gorm:"column:balance_cents;not null;default:0"`
	CreatedAt            time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
