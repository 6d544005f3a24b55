package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	"github.com/noah-isme/cert-reminder-api/internal/notify"
	"github.com/noah-isme/cert-reminder-api/pkg/config"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
)

type dispatchReminderRepository interface {
	FindDue(ctx context.Context, before time.Time, attemptBackoff time.Duration) ([]models.Reminder, error)
	FindByID(ctx context.Context, id string) (*models.ReminderDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.ReminderStatus, sentAt *time.Time) error
	MarkAttempt(ctx context.Context, id string, at time.Time) error
	Reset(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, newDate time.Time) error
}

type deliveryLogRepository interface {
	Append(ctx context.Context, entry *models.DeliveryLogEntry) error
	ListFor(ctx context.Context, reminderID string) ([]models.DeliveryLogEntry, error)
	PurgeFor(ctx context.Context, reminderID string) error
}

// DispatchService delivers one reminder across all eligible channels and
// persists the outcome. Send is intentionally not idempotent: invoking it on
// an already-SENT reminder re-attempts delivery and the final status
// reflects the latest outcome.
type DispatchService struct {
	reminders dispatchReminderRepository
	ledger    deliveryLogRepository
	templates *TemplateService
	email     notify.EmailSender
	sms       notify.SMSSender
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       config.DispatchConfig
}

// NewDispatchService constructs the dispatch engine.
func NewDispatchService(
	reminders dispatchReminderRepository,
	ledger deliveryLogRepository,
	templates *TemplateService,
	email notify.EmailSender,
	sms notify.SMSSender,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg config.DispatchConfig,
) *DispatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 30 * time.Second
	}
	return &DispatchService{
		reminders: reminders,
		ledger:    ledger,
		templates: templates,
		email:     email,
		sms:       sms,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// DeliveryDetails combines a reminder with its audit ledger.
type DeliveryDetails struct {
	Reminder   models.Reminder           `json:"reminder"`
	Student    models.Student            `json:"student"`
	Deliveries []models.DeliveryLogEntry `json:"deliveries"`
}

// Send dispatches one reminder. Channel failures never surface as errors;
// only structural problems (missing reminder, broken template, store
// unavailability) do.
func (s *DispatchService) Send(ctx context.Context, reminderID string) (models.ReminderStatus, error) {
	detail, err := s.reminders.FindByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reminder")
	}

	now := time.Now().UTC()

	// The attempt marker lands before any provider call so a crash between
	// delivery and the status write cannot cause an immediate duplicate on
	// the next scheduled run.
	if err := s.reminders.MarkAttempt(ctx, reminderID, now); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attempt")
	}

	student := detail.Student
	vars := s.buildVariables(detail)

	attempted := 0
	succeeded := 0

	if student.HasEmail() && !student.EmailOptOut {
		attempted++
		if s.attemptEmail(ctx, detail, vars) {
			succeeded++
		}
	}

	if student.HasPhone() && !student.SMSOptOut {
		attempted++
		if s.attemptSMS(ctx, detail, vars) {
			succeeded++
		}
	}

	status := models.ReminderStatusFailed
	var sentAt *time.Time
	if succeeded > 0 {
		status = models.ReminderStatusSent
		sentAt = &now
	}

	if attempted == 0 {
		// Persisted status is FAILED either way; the log line is what tells
		// "nobody to send to" apart from an actual delivery failure.
		s.logger.Warn("reminder has no eligible channel",
			zap.String("reminder_id", reminderID),
			zap.String("student_id", student.ID),
			zap.Bool("email_opt_out", student.EmailOptOut),
			zap.Bool("sms_opt_out", student.SMSOptOut),
			zap.Bool("has_email", student.HasEmail()),
			zap.Bool("has_phone", student.HasPhone()),
		)
		s.metrics.RecordDispatch("no_eligible_channel")
	} else {
		s.metrics.RecordDispatch(string(status))
	}

	if err := s.reminders.UpdateStatus(ctx, reminderID, status, sentAt); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist reminder status")
	}

	s.logger.Info("reminder dispatched",
		zap.String("reminder_id", reminderID),
		zap.String("status", string(status)),
		zap.Int("channels_attempted", attempted),
		zap.Int("channels_succeeded", succeeded),
	)

	return status, nil
}

// RunDue processes every due PENDING reminder sequentially. A failing item
// is recorded in the summary and never aborts the batch.
func (s *DispatchService) RunDue(ctx context.Context) (*models.DispatchSummary, error) {
	due, err := s.reminders.FindDue(ctx, time.Now().UTC(), s.cfg.AttemptBackoff)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query due reminders")
	}

	summary := &models.DispatchSummary{}
	for _, reminder := range due {
		summary.Processed++
		status, err := s.Send(ctx, reminder.ID)
		if err != nil {
			summary.Failed++
			s.logger.Error("dispatch failed for reminder",
				zap.String("reminder_id", reminder.ID),
				zap.Error(err),
			)
			continue
		}
		if status == models.ReminderStatusSent {
			summary.Sent++
		} else {
			summary.Failed++
		}
	}

	s.logger.Info("due reminder run complete",
		zap.Int("processed", summary.Processed),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// Reschedule moves a reminder to a new date and reopens it for dispatch.
func (s *DispatchService) Reschedule(ctx context.Context, reminderID string, newDate time.Time) error {
	if _, err := s.reminders.FindByID(ctx, reminderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reminder")
	}
	if err := s.reminders.Reschedule(ctx, reminderID, newDate); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reschedule reminder")
	}
	return nil
}

// Reset purges the delivery ledger and returns the reminder to PENDING.
// Purge strictly precedes the status write.
func (s *DispatchService) Reset(ctx context.Context, reminderID string) error {
	if _, err := s.reminders.FindByID(ctx, reminderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reminder")
	}
	if err := s.ledger.PurgeFor(ctx, reminderID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge delivery log")
	}
	if err := s.reminders.Reset(ctx, reminderID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset reminder")
	}
	return nil
}

// GetDeliveryDetails returns the reminder with its ledger, newest first.
func (s *DispatchService) GetDeliveryDetails(ctx context.Context, reminderID string) (*DeliveryDetails, error) {
	detail, err := s.reminders.FindByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reminder")
	}
	entries, err := s.ledger.ListFor(ctx, reminderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list delivery log")
	}
	return &DeliveryDetails{Reminder: detail.Reminder, Student: detail.Student, Deliveries: entries}, nil
}

func (s *DispatchService) buildVariables(detail *models.ReminderDetail) map[string]string {
	vars := map[string]string{
		"classTypeName": detail.ClassType.DisplayName(),
		"studentName":   detail.Student.FullName,
		"scheduleLink":  s.cfg.ScheduleLink,
		"optOutLink":    s.cfg.OptOutLink,
	}
	if detail.Student.Email != nil {
		vars["studentEmail"] = *detail.Student.Email
	}
	if detail.Student.Phone != nil {
		vars["studentPhone"] = *detail.Student.Phone
	}
	return vars
}

func (s *DispatchService) attemptEmail(ctx context.Context, detail *models.ReminderDetail, vars map[string]string) bool {
	resolved, err := s.templates.Resolve(ctx, detail.ClassType, models.ChannelEmail)
	if err != nil {
		s.recordAttempt(ctx, detail.ID, models.ChannelEmail, notify.Failure(err.Error()))
		return false
	}
	mergeVariables(vars, resolved)

	subject := s.templates.Render(resolved.Subject, vars)
	body := s.templates.Render(resolved.Body, vars)
	htmlBody, err := s.templates.RenderHTML(subject, body, vars["scheduleLink"], vars["optOutLink"])
	if err != nil {
		s.recordAttempt(ctx, detail.ID, models.ChannelEmail, notify.Failure(err.Error()))
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
	defer cancel()
	result := s.email.Send(sendCtx, *detail.Student.Email, subject, body, htmlBody)
	s.recordAttempt(ctx, detail.ID, models.ChannelEmail, result)
	return result.Success
}

func (s *DispatchService) attemptSMS(ctx context.Context, detail *models.ReminderDetail, vars map[string]string) bool {
	resolved, err := s.templates.Resolve(ctx, detail.ClassType, models.ChannelSMS)
	if err != nil {
		s.recordAttempt(ctx, detail.ID, models.ChannelSMS, notify.Failure(err.Error()))
		return false
	}
	mergeVariables(vars, resolved)

	body := s.templates.Render(resolved.Body, vars)

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
	defer cancel()
	result := s.sms.Send(sendCtx, *detail.Student.Phone, body)
	s.recordAttempt(ctx, detail.ID, models.ChannelSMS, result)
	return result.Success
}

func (s *DispatchService) recordAttempt(ctx context.Context, reminderID string, channel models.Channel, result notify.Result) {
	entry := &models.DeliveryLogEntry{
		ReminderID: reminderID,
		Channel:    channel,
		Status:     models.DeliveryStatusFailed,
	}
	if result.Success {
		entry.Status = models.DeliveryStatusSent
	}
	if result.MessageID != "" {
		id := result.MessageID
		entry.ProviderMessageID = &id
	}
	if result.Error != "" {
		msg := result.Error
		entry.ErrorMessage = &msg
	}

	s.metrics.RecordDeliveryAttempt(string(channel), string(entry.Status))

	if err := s.ledger.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append delivery log entry",
			zap.String("reminder_id", reminderID),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
	}
}

func mergeVariables(vars map[string]string, resolved *ResolvedTemplate) {
	if resolved.ScheduleLink != "" {
		vars["scheduleLink"] = resolved.ScheduleLink
	}
	for k, v := range resolved.Variables {
		if _, exists := vars[k]; !exists {
			vars[k] = v
		}
	}
}
