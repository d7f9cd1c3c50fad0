package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Service persists in-app notifications and serves a user's inbox.
type Service interface {
	Notify(ctx context.Context, input NotifyInput) error
	List(ctx context.Context, req InboxRequest) (*InboxPage, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type NotifyInput struct {
	UserID           uuid.UUID
	Type             enums.NotificationType
	Content          string
	RelatedProductID *uuid.UUID
	SenderID         *uuid.UUID
}

// InboxRequest selects one page of a user's inbox. Cursor is the opaque
// value returned by the previous page.
type InboxRequest struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

type InboxPage struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

var errNoUser = pkgerrors.New(pkgerrors.CodeValidation, "user id required")

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification store missing")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Notify(ctx context.Context, in NotifyInput) error {
	content := strings.TrimSpace(in.Content)
	switch {
	case in.UserID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient user id required")
	case !in.Type.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	case content == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "notification content required")
	}

	err := s.repo.Create(ctx, &models.Notification{
		UserID:           in.UserID,
		Type:             in.Type,
		Content:          content,
		RelatedProductID: in.RelatedProductID,
		SenderID:         in.SenderID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store notification")
	}
	return nil
}

func (s *service) List(ctx context.Context, req InboxRequest) (*InboxPage, error) {
	if req.UserID == uuid.Nil {
		return nil, errNoUser
	}

	q := inboxQuery{UserID: req.UserID, Limit: req.Limit, UnreadOnly: req.UnreadOnly}
	if req.Cursor != "" {
		after, err := pagination.ParseCursor(req.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed inbox cursor")
		}
		q.After = after
	}

	rows, next, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inbox")
	}

	page := &InboxPage{Items: rows}
	if next != nil {
		page.Cursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// MarkRead reports NotFound for notifications owned by someone else.
func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return errNoUser
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	found, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	switch {
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update notification")
	case !found:
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, errNoUser
	}
	n, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update inbox")
	}
	return n, nil
}
