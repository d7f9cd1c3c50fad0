package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to users.
type Notification struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Type             enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Content          string                 `gorm:"column:content;type:text;not null"`
	RelatedProductID *uuid.UUID             `gorm:"column:related_product_id;type:uuid"`
	SenderID         *uuid.UUID             `gorm:"column:sender_id;type:uuid"`
	ReadAt           *time.Time             `gorm:"column:read_at"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
