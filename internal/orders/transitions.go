package orders

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// nextLineStatus is the only forward move allowed from each state.
var nextLineStatus = map[enums.LineStatus]enums.LineStatus{
	enums.LineStatusPending:        enums.LineStatusProcessing,
	enums.LineStatusProcessing:     enums.LineStatusShipped,
	enums.LineStatusShipped:        enums.LineStatusOutForDelivery,
	enums.LineStatusOutForDelivery: enums.LineStatusDelivered,
}

type party string

const (
	partySeller party = "seller"
	partyBuyer  party = "buyer"
)

// requiredParty names who may move a line into target.
func requiredParty(target enums.LineStatus) (party, error) {
	switch target {
	case enums.LineStatusProcessing, enums.LineStatusShipped, enums.LineStatusOutForDelivery:
		return partySeller, nil
	case enums.LineStatusDelivered:
		return partyBuyer, nil
	case enums.LineStatusCancelled:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "use the cancel endpoint to cancel an item")
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown item status %q", target))
	}
}

func authorizeTransition(order *models.Order, line *models.OrderLine, target enums.LineStatus, actorID uuid.UUID) error {
	who, err := requiredParty(target)
	if err != nil {
		return err
	}
	switch who {
	case partySeller:
		if line.SellerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("only the item's seller can mark it %s", target))
		}
	case partyBuyer:
		if order.CustomerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm delivery")
		}
	}
	return nil
}

func checkTransition(from, to enums.LineStatus) error {
	if from == enums.LineStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled items cannot change status").
			WithDetails(map[string]any{"from": from, "to": to})
	}
	if next, ok := nextLineStatus[from]; !ok || next != to {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("invalid status transition from %s to %s", from, to)).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	return nil
}
