package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	"github.com/noah-isme/cert-reminder-api/internal/notify"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
)

type registrationStudentRepository interface {
	CountByContactAndClass(ctx context.Context, email, phone string, classType models.ClassType) (int, error)
	Create(ctx context.Context, student *models.Student) error
}

type registrationReminderRepository interface {
	Create(ctx context.Context, reminder *models.Reminder) error
}

// RegistrationService gates new enrollments behind contact verification.
type RegistrationService struct {
	verification *VerificationService
	students     registrationStudentRepository
	reminders    registrationReminderRepository
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewRegistrationService constructs the service.
func NewRegistrationService(
	verification *VerificationService,
	students registrationStudentRepository,
	reminders registrationReminderRepository,
	validate *validator.Validate,
	logger *zap.Logger,
) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		verification: verification,
		students:     students,
		reminders:    reminders,
		validator:    validate,
		logger:       logger,
	}
}

// StartRegistrationRequest describes the registration initiation payload.
type StartRegistrationRequest struct {
	FullName  string `json:"full_name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	ClassType string `json:"class_type" validate:"required"`
	Notes     string `json:"notes"`
}

// StartRegistrationResponse carries the session token the client uses for
// verify/resend calls.
type StartRegistrationResponse struct {
	Token       string `json:"token"`
	DualChannel bool   `json:"dual_channel"`
}

// Start validates the request, refuses duplicates, and opens a verification
// session. With both email and phone supplied the session verifies each
// contact in sequence.
func (s *RegistrationService) Start(ctx context.Context, req StartRegistrationRequest) (*StartRegistrationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	classType := models.ClassType(req.ClassType)
	if !classType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown class type")
	}
	if req.Email == "" && req.Phone == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "email or phone is required")
	}
	if req.Phone != "" {
		normalized, err := notify.NormalizePhone(req.Phone)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid phone number")
		}
		req.Phone = normalized
	}

	existing, err := s.students.CountByContactAndClass(ctx, req.Email, req.Phone, classType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollments")
	}
	if existing > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a registration for this contact and class already exists")
	}

	payload, err := json.Marshal(models.RegistrationPayload{
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		ClassType: classType,
		Notes:     req.Notes,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode payload")
	}

	token, _, err := s.verification.Initiate(ctx, models.PurposeRegistration, req.Email, req.Phone, payload)
	if err != nil {
		return nil, err
	}

	return &StartRegistrationResponse{
		Token:       token,
		DualChannel: req.Email != "" && req.Phone != "",
	}, nil
}

// CompletedRegistration is returned once the hand-off token is consumed.
type CompletedRegistration struct {
	Student  models.Student  `json:"student"`
	Reminder models.Reminder `json:"reminder"`
}

// Complete consumes a REGISTRATION hand-off token, creates the student and
// schedules the renewal reminder for the class type's interval.
func (s *RegistrationService) Complete(ctx context.Context, handoffToken string) (*CompletedRegistration, error) {
	raw, err := s.verification.Consume(ctx, handoffToken, models.PurposeRegistration)
	if err != nil {
		return nil, err
	}

	var payload models.RegistrationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed hand-off payload")
	}

	student := &models.Student{FullName: payload.FullName}
	if payload.Email != "" {
		email := payload.Email
		student.Email = &email
	}
	if payload.Phone != "" {
		phone := payload.Phone
		student.Phone = &phone
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	reminder := &models.Reminder{
		StudentID:   student.ID,
		ClassType:   payload.ClassType,
		ScheduledAt: time.Now().UTC().Add(payload.ClassType.RenewalInterval()),
		Status:      models.ReminderStatusPending,
		Notes:       payload.Notes,
	}
	if err := s.reminders.Create(ctx, reminder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reminder")
	}

	s.logger.Info("registration completed",
		zap.String("student_id", student.ID),
		zap.String("class_type", string(payload.ClassType)),
		zap.Time("reminder_scheduled_at", reminder.ScheduledAt),
	)

	return &CompletedRegistration{Student: *student, Reminder: *reminder}, nil
}
