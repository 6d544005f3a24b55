package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cert-reminder-api/internal/models"
)

// TemplateRepository persists custom message templates.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository creates the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// FindFor returns the template configured for the class type and channel,
// or sql.ErrNoRows when none exists and the built-in default applies.
func (r *TemplateRepository) FindFor(ctx context.Context, classType models.ClassType, channel models.Channel) (*models.MessageTemplate, error) {
	const query = `SELECT id, class_type, channel, subject, body, schedule_link, variables, created_at, updated_at
FROM message_templates WHERE class_type = $1 AND channel = $2`
	var tpl models.MessageTemplate
	if err := r.db.GetContext(ctx, &tpl, query, classType, channel); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Upsert inserts or replaces the template for its (class type, channel) key.
func (r *TemplateRepository) Upsert(ctx context.Context, tpl *models.MessageTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	const query = `INSERT INTO message_templates (id, class_type, channel, subject, body, schedule_link, variables, created_at, updated_at)
VALUES (:id, :class_type, :channel, :subject, :body, :schedule_link, :variables, :created_at, :updated_at)
ON CONFLICT (class_type, channel) DO UPDATE SET
        subject = EXCLUDED.subject, body = EXCLUDED.body, schedule_link = EXCLUDED.schedule_link,
        variables = EXCLUDED.variables, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, tpl); err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}
