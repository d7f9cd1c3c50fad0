package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// LedgerEvent records an immutable money movement tied to an order.
type LedgerEvent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	TransactionID uuid.UUID             `gorm:"column:transaction_id;type:uuid;not null"`
	OrderLineID   *uuid.UUID            `gorm:"column:order_line_id;type:uuid"`
	SellerID      *uuid.UUID            `gorm:"column:seller_id;type:uuid"`
	ActorUserID   *uuid.UUID            `gorm:"column:actor_user_id;type:uuid"`
	Type          enums.LedgerEventType `gorm:"column:type;type:ledger_event_type;not null;uniqueIndex:ux_ledger_events_type_reference,priority:1"`
	AmountCents   int64                 `gorm:"column:amount_cents;not null"`
	Reference     string                `gorm:"column:reference;not null;uniqueIndex:ux_ledger_events_type_reference,priority:2"`
	Metadata      json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
