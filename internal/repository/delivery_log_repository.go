package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cert-reminder-api/internal/models"
)

// DeliveryLogRepository persists the append-only delivery ledger.
type DeliveryLogRepository struct {
	db *sqlx.DB
}

// NewDeliveryLogRepository creates the repository.
func NewDeliveryLogRepository(db *sqlx.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Append writes one ledger entry. Entries are never updated.
func (r *DeliveryLogRepository) Append(ctx context.Context, entry *models.DeliveryLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO delivery_log (id, reminder_id, channel, status, provider_message_id, error_message, created_at)
VALUES (:id, :reminder_id, :channel, :status, :provider_message_id, :error_message, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}

// ListFor returns the ledger for a reminder, newest first.
func (r *DeliveryLogRepository) ListFor(ctx context.Context, reminderID string) ([]models.DeliveryLogEntry, error) {
	const query = `SELECT id, reminder_id, channel, status, provider_message_id, error_message, created_at
FROM delivery_log WHERE reminder_id = $1 ORDER BY created_at DESC`
	var entries []models.DeliveryLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, reminderID); err != nil {
		return nil, fmt.Errorf("list delivery log: %w", err)
	}
	return entries, nil
}

// PurgeFor removes every entry for a reminder. Only the administrative
// reset calls this, strictly before the status goes back to PENDING.
func (r *DeliveryLogRepository) PurgeFor(ctx context.Context, reminderID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM delivery_log WHERE reminder_id = $1", reminderID); err != nil {
		return fmt.Errorf("purge delivery log: %w", err)
	}
	return nil
}
