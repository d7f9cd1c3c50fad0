package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Listing is a seller's product together with its stock.
type Listing struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	SellerID           uuid.UUID                `gorm:"column:seller_id;type:uuid;not null;index"`
	Title              string                   `gorm:"column:title;not null"`
	PriceCents         int64                    `gorm:"column:price_cents;not null"`
	VerificationStatus enums.VerificationStatus `gorm:"column:verification_status;type:verification_status;not null;default:'Pending'"`
	Inventory          int                      `gorm:"column:inventory;not null;default:0;check:inventory >= 0"`
	IsSold             bool                     `gorm:"column:is_sold;not null;default:false"`
	OrderCount         int                      `gorm:"column:order_count;not null;default:0"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
