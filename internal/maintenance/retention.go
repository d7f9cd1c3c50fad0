package maintenance

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const defaultRetentionDays = 30

type outboxPurger interface {
	PurgePublished(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type notificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetentionJob deletes outbox rows the publisher relayed more than
// RetentionDays ago.
type OutboxRetentionJob struct {
	db        txRunner
	repo      outboxPurger
	retention int
	now       func() time.Time
}

func NewOutboxRetentionJob(db txRunner, repo outboxPurger, retentionDays int) (*OutboxRetentionJob, error) {
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &OutboxRetentionJob{db: db, repo: repo, retention: retentionDays, now: time.Now}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := cutoffDays(j.now(), j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		n, err := j.repo.PurgePublished(tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge published outbox rows: %w", err)
	}
	return deleted, nil
}

// NotificationCleanupJob deletes notifications read more than RetentionDays ago.
type NotificationCleanupJob struct {
	repo      notificationPurger
	retention int
	now       func() time.Time
}

func NewNotificationCleanupJob(repo notificationPurger, retentionDays int) (*NotificationCleanupJob, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &NotificationCleanupJob{repo: repo, retention: retentionDays, now: time.Now}, nil
}

func (j *NotificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *NotificationCleanupJob) Run(ctx context.Context) (int64, error) {
	deleted, err := j.repo.DeleteReadBefore(ctx, cutoffDays(j.now(), j.retention))
	if err != nil {
		return 0, fmt.Errorf("purge read notifications: %w", err)
	}
	return deleted, nil
}
