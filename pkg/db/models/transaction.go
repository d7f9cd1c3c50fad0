package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Transaction is the payment ledger entry for an order. It is created once at
// placement and only consulted afterwards.
type Transaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	CustomerID       uuid.UUID               `gorm:"column:customer_id;type:uuid;not null"`
	Reference        string                  `gorm:"column:reference;not null;uniqueIndex"`
	AuthorizationURL string                  `gorm:"column:authorization_url;not null"`
	PaymentReference *string                 `gorm:"column:payment_reference"`
	AmountCents      int64                   `gorm:"column:amount_cents;not null"`
	Currency         string                  `gorm:"column:currency;not null;default:'usd'"`
	Status           enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	IsReversed       bool                    `gorm:"column:is_reversed;not null;default:false"`
	Items            []TransactionItem       `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	SettledAt        *time.Time              `gorm:"column:settled_at"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// ItemForLine returns the ledger item of the given order line, if any.
func (t *Transaction) ItemForLine(lineID uuid.UUID) *TransactionItem {
	for i := range t.Items {
		if t.Items[i].OrderLineID == lineID {
			return &t.Items[i]
		}
	}
	return nil
}
