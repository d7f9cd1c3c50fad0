package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// lastErrorLimit caps the stored failure text of a row.
const lastErrorLimit = 1024

var errNoTx = errors.New("outbox: call requires an open transaction")

// Repository reads and writes outbox rows. Methods taking tx must run in the
// caller's unit of work; the rest fall back to the bound handle when tx is nil.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func oldestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// ClaimPending returns up to limit unpublished rows with attempts left. On
// Postgres they are locked FOR UPDATE SKIP LOCKED until tx ends, so parallel
// relays split the backlog instead of double-sending.
func (r *Repository) ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Scopes(oldestFirst).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Limit(limit)
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var pending []models.OutboxEvent
	return pending, q.Find(&pending).Error
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{"published_at": time.Now().UTC()})
}

// RecordFailure keeps the row pending and spends one attempt.
func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    clip(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Park exhausts the row's attempts so ClaimPending skips it for good.
func (r *Repository) Park(tx *gorm.DB, id uuid.UUID, cause error, attempts int) error {
	return r.update(tx, id, map[string]any{
		"last_error":    clip(cause),
		"attempt_count": attempts,
	})
}

func (r *Repository) ForAggregate(tx *gorm.DB, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.handle(tx).Scopes(oldestFirst).Where("aggregate_id = ?", aggregateID).Find(&rows).Error
	return rows, err
}

// PurgePublished deletes relayed rows older than cutoff; pending and parked
// rows stay.
func (r *Repository) PurgePublished(tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := r.handle(tx).
		Where("published_at IS NOT NULL").
		Where("published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func clip(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); len(msg) > lastErrorLimit {
		return msg[:lastErrorLimit]
	}
	return err.Error()
}
