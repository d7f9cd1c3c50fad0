package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestDeleteReadBeforeKeepsUnread(t *testing.T) {
	_, conn := newTestService(t)
	repo := NewRepository(conn)
	userID := uuid.New()
	longAgo := time.Now().UTC().Add(-90 * 24 * time.Hour)
	yesterday := time.Now().UTC().Add(-24 * time.Hour)

	rows := []models.Notification{
		{UserID: userID, Type: enums.NotificationTypeNewOrder, Content: "old read", ReadAt: &longAgo},
		{UserID: userID, Type: enums.NotificationTypeNewOrder, Content: "fresh read", ReadAt: &yesterday},
		{UserID: userID, Type: enums.NotificationTypeNewOrder, Content: "old unread", CreatedAt: longAgo},
	}
	if err := conn.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, err := repo.DeleteReadBefore(context.Background(), time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("delete read: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 row deleted, got %d", deleted)
	}
	var remaining []models.Notification
	if err := conn.Order("content ASC").Find(&remaining).Error; err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 2 || remaining[0].Content != "fresh read" || remaining[1].Content != "old unread" {
		t.Fatalf("unexpected survivors: %+v", remaining)
	}
}

func TestMarkReadKeepsFirstReadTime(t *testing.T) {
	_, conn := newTestService(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	userID := uuid.New()

	row := models.Notification{UserID: userID, Type: enums.NotificationTypeOrderPlaced, Content: "placed"}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	first := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	found, err := repo.MarkRead(ctx, userID, row.ID, first)
	if err != nil || !found {
		t.Fatalf("first mark: found=%v err=%v", found, err)
	}
	found, err = repo.MarkRead(ctx, userID, row.ID, time.Now().UTC())
	if err != nil || !found {
		t.Fatalf("second mark: found=%v err=%v", found, err)
	}

	var stored models.Notification
	if err := conn.First(&stored, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.ReadAt == nil || !stored.ReadAt.Equal(first) {
		t.Fatalf("expected read_at to stay %v, got %v", first, stored.ReadAt)
	}

	found, err = repo.MarkRead(ctx, uuid.New(), row.ID, time.Now())
	if err != nil || found {
		t.Fatalf("another user's notification must not be found: found=%v err=%v", found, err)
	}
}
