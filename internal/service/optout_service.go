package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	"github.com/noah-isme/cert-reminder-api/internal/notify"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
)

type optOutStudentRepository interface {
	FindByDestination(ctx context.Context, destination string) (*models.Student, error)
	UpdateOptOut(ctx context.Context, id string, emailOptOut, smsOptOut bool) error
	SetPendingOTP(ctx context.Context, id, code string, expiresAt time.Time) error
	ClearPendingOTP(ctx context.Context, id string) error
}

// OptOutService verifies contact ownership before changing notification
// preferences. The issued code is mirrored onto the student row so support
// staff can see an opt-out attempt in flight; the session store remains the
// source of truth for the challenge itself.
type OptOutService struct {
	verification *VerificationService
	students     optOutStudentRepository
	sessionTTL   time.Duration
	logger       *zap.Logger
}

// NewOptOutService constructs the service.
func NewOptOutService(verification *VerificationService, students optOutStudentRepository, sessionTTL time.Duration, logger *zap.Logger) *OptOutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionTTL <= 0 {
		sessionTTL = 10 * time.Minute
	}
	return &OptOutService{verification: verification, students: students, sessionTTL: sessionTTL, logger: logger}
}

// StartOptOutRequest asks for a verification code at the given contact.
type StartOptOutRequest struct {
	Destination string `json:"destination"`
	EmailOptOut bool   `json:"email_opt_out"`
	SMSOptOut   bool   `json:"sms_opt_out"`
}

// Start looks the student up by contact and opens an opt-out verification
// session against that single contact.
func (s *OptOutService) Start(ctx context.Context, req StartOptOutRequest) (string, error) {
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "destination is required")
	}

	isEmail := strings.Contains(destination, "@")
	if !isEmail {
		normalized, err := notify.NormalizePhone(destination)
		if err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, "destination is not a valid email or phone number")
		}
		destination = normalized
	}

	student, err := s.students.FindByDestination(ctx, destination)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "no enrollment found for that contact")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up student")
	}

	payload, err := json.Marshal(models.OptOutPayload{
		StudentID:   student.ID,
		EmailOptOut: req.EmailOptOut,
		SMSOptOut:   req.SMSOptOut,
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode payload")
	}

	email, phone := "", ""
	if isEmail {
		email = destination
	} else {
		phone = destination
	}

	token, code, err := s.verification.Initiate(ctx, models.PurposeOptOut, email, phone, payload)
	if err != nil {
		return "", err
	}

	if err := s.students.SetPendingOTP(ctx, student.ID, code, time.Now().UTC().Add(s.sessionTTL)); err != nil {
		s.logger.Warn("failed to mirror pending otp", zap.String("student_id", student.ID), zap.Error(err))
	}

	return token, nil
}

// Complete consumes an OPT_OUT hand-off token and applies the change.
func (s *OptOutService) Complete(ctx context.Context, handoffToken string) error {
	raw, err := s.verification.Consume(ctx, handoffToken, models.PurposeOptOut)
	if err != nil {
		return err
	}

	var payload models.OptOutPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed hand-off payload")
	}

	if err := s.students.UpdateOptOut(ctx, payload.StudentID, payload.EmailOptOut, payload.SMSOptOut); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update opt-out flags")
	}
	if err := s.students.ClearPendingOTP(ctx, payload.StudentID); err != nil {
		s.logger.Warn("failed to clear pending otp", zap.String("student_id", payload.StudentID), zap.Error(err))
	}

	s.logger.Info("opt-out preferences updated",
		zap.String("student_id", payload.StudentID),
		zap.Bool("email_opt_out", payload.EmailOptOut),
		zap.Bool("sms_opt_out", payload.SMSOptOut),
	)

	return nil
}
