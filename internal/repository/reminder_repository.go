package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cert-reminder-api/internal/models"
)

// ReminderRepository provides persistence for reminders.
type ReminderRepository struct {
	db *sqlx.DB
}

// NewReminderRepository creates the repository.
func NewReminderRepository(db *sqlx.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// FindDue returns PENDING reminders whose scheduled date has passed, oldest
// first. Reminders attempted within the backoff window are skipped so a
// crash between provider call and status update cannot trigger an immediate
// duplicate send on the next run.
func (r *ReminderRepository) FindDue(ctx context.Context, before time.Time, attemptBackoff time.Duration) ([]models.Reminder, error) {
	const query = `SELECT id, student_id, class_type, scheduled_at, status, sent_at, last_attempt_at, notes, created_at, updated_at
FROM reminders
WHERE status = $1 AND scheduled_at <= $2 AND (last_attempt_at IS NULL OR last_attempt_at < $3)
ORDER BY scheduled_at ASC`
	cutoff := before.Add(-attemptBackoff)
	var reminders []models.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, models.ReminderStatusPending, before, cutoff); err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	return reminders, nil
}

// FindByID returns a reminder joined with its student.
func (r *ReminderRepository) FindByID(ctx context.Context, id string) (*models.ReminderDetail, error) {
	const query = `SELECT r.id, r.student_id, r.class_type, r.scheduled_at, r.status, r.sent_at, r.last_attempt_at, r.notes, r.created_at, r.updated_at,
        s.id AS "student.id", s.full_name AS "student.full_name", s.email AS "student.email", s.phone AS "student.phone",
        s.email_opt_out AS "student.email_opt_out", s.sms_opt_out AS "student.sms_opt_out",
        s.created_at AS "student.created_at", s.updated_at AS "student.updated_at"
FROM reminders r JOIN students s ON s.id = r.student_id
WHERE r.id = $1`
	var detail models.ReminderDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateStatus persists the dispatch outcome. sentAt is written only for
// SENT outcomes; passing nil clears the column, which the administrative
// reset relies on.
func (r *ReminderRepository) UpdateStatus(ctx context.Context, id string, status models.ReminderStatus, sentAt *time.Time) error {
	const query = `UPDATE reminders SET status = $2, sent_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, sentAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update reminder status: %w", err)
	}
	return nil
}

// MarkAttempt stamps last_attempt_at before any provider call is made.
func (r *ReminderRepository) MarkAttempt(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE reminders SET last_attempt_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark reminder attempt: %w", err)
	}
	return nil
}

// Reset clears the dispatch outcome, returning the reminder to PENDING.
// The caller must purge the delivery ledger first.
func (r *ReminderRepository) Reset(ctx context.Context, id string) error {
	const query = `UPDATE reminders SET status = $2, sent_at = NULL, last_attempt_at = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReminderStatusPending, time.Now().UTC()); err != nil {
		return fmt.Errorf("reset reminder: %w", err)
	}
	return nil
}

// Reschedule moves the reminder to a new date and returns it to PENDING.
func (r *ReminderRepository) Reschedule(ctx context.Context, id string, newDate time.Time) error {
	const query = `UPDATE reminders SET scheduled_at = $2, status = $3, sent_at = NULL, last_attempt_at = NULL, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, newDate, models.ReminderStatusPending, time.Now().UTC()); err != nil {
		return fmt.Errorf("reschedule reminder: %w", err)
	}
	return nil
}

// Create inserts a new reminder, typically at enrollment time.
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	if reminder.Status == "" {
		reminder.Status = models.ReminderStatusPending
	}
	now := time.Now().UTC()
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = now
	}
	reminder.UpdatedAt = now
	const query = `INSERT INTO reminders (id, student_id, class_type, scheduled_at, status, sent_at, last_attempt_at, notes, created_at, updated_at)
VALUES (:id, :student_id, :class_type, :scheduled_at, :status, :sent_at, :last_attempt_at, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}
