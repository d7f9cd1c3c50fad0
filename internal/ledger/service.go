// Package ledger keeps the payment transaction of each order and an
// append-only trail of the money movements made against it.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, entry Entry) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
}

// Entry is one money movement. Reference is the provider id of the movement
// (session, transfer or refund) and together with Type identifies it.
type Entry struct {
	OrderID       uuid.UUID
	TransactionID uuid.UUID
	OrderLineID   *uuid.UUID
	SellerID      *uuid.UUID
	ActorUserID   *uuid.UUID
	Type          enums.LedgerEventType
	AmountCents   int64
	Reference     string
	Metadata      map[string]any
}

func (e Entry) check() error {
	var problems []string
	if e.OrderID == uuid.Nil {
		problems = append(problems, "order id missing")
	}
	if e.TransactionID == uuid.Nil {
		problems = append(problems, "transaction id missing")
	}
	if !e.Type.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown event type %q", e.Type))
	}
	if strings.TrimSpace(e.Reference) == "" {
		problems = append(problems, "reference missing")
	}
	if len(problems) > 0 {
		return fmt.Errorf("ledger entry: %s", strings.Join(problems, "; "))
	}
	return nil
}

const typeReferenceIndex = "ux_ledger_events_type_reference"

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("ledger: repository missing")
	}
	return &service{repo: repo}, nil
}

// RecordEvent appends entry inside tx. Replaying an entry whose (type,
// reference) pair is already on the ledger is a no-op returning nil, nil.
func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, entry Entry) (*models.LedgerEvent, error) {
	if err := entry.check(); err != nil {
		return nil, err
	}

	row := &models.LedgerEvent{
		OrderID:       entry.OrderID,
		TransactionID: entry.TransactionID,
		OrderLineID:   entry.OrderLineID,
		SellerID:      entry.SellerID,
		ActorUserID:   entry.ActorUserID,
		Type:          entry.Type,
		AmountCents:   entry.AmountCents,
		Reference:     entry.Reference,
	}
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ledger metadata: %w", err)
		}
		row.Metadata = raw
	}

	repo := s.repo.WithTx(tx)
	if seen, err := repo.EventExists(ctx, entry.Type, entry.Reference); err != nil || seen {
		return nil, err
	}
	if err := repo.CreateEvent(ctx, row); err != nil {
		if dbpkg.IsUniqueViolation(err, typeReferenceIndex) {
			return nil, fmt.Errorf("ledger %s %s written concurrently: %w", entry.Type, entry.Reference, err)
		}
		return nil, err
	}
	return row, nil
}

func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil || !eventType.IsValid() {
		return false, fmt.Errorf("ledger lookup: order %s type %q", orderID, eventType)
	}
	events, err := s.repo.OrderEvents(ctx, orderID, eventType)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}
