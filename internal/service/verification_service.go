package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	"github.com/noah-isme/cert-reminder-api/internal/notify"
	"github.com/noah-isme/cert-reminder-api/internal/store"
	"github.com/noah-isme/cert-reminder-api/pkg/config"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
)

// VerificationService runs the one-time-code challenge protecting new
// registrations and opt-out changes. Sessions live in the injected store;
// success produces a short-lived signed hand-off token that the completion
// endpoints consume exactly once.
type VerificationService struct {
	sessions store.SessionStore
	email    notify.EmailSender
	sms      notify.SMSSender
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      config.VerificationConfig
	handoff  config.HandoffConfig

	now func() time.Time
}

// NewVerificationService constructs the service.
func NewVerificationService(
	sessions store.SessionStore,
	email notify.EmailSender,
	sms notify.SMSSender,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg config.VerificationConfig,
	handoff config.HandoffConfig,
) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxResends <= 0 {
		cfg.MaxResends = 3
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = time.Minute
	}
	return &VerificationService{
		sessions: sessions,
		email:    email,
		sms:      sms,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		handoff:  handoff,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Initiate creates a session, sends the first code and returns the session
// token plus the issued code. The code return value exists for flows that
// mirror it elsewhere (opt-out pending OTP); HTTP handlers never expose it.
// A failed send discards the session rather than stranding it.
func (s *VerificationService) Initiate(ctx context.Context, purpose models.VerificationPurpose, email, phone string, payload json.RawMessage) (string, string, error) {
	if email == "" && phone == "" {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "at least one contact is required")
	}

	token, err := generateSessionToken()
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate session token")
	}
	code, err := GenerateCode()
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}

	firstChannel := models.ChannelEmail
	if email == "" {
		firstChannel = models.ChannelSMS
	}

	session := &models.VerificationSession{
		Token:          token,
		Purpose:        purpose,
		State:          models.VerificationCreated,
		Email:          email,
		Phone:          phone,
		Code:           code,
		CurrentChannel: firstChannel,
		CreatedAt:      s.now(),
	}
	if payload != nil {
		session.Payload = payload
	}

	if result := s.sendCode(ctx, session, code); !result.Success {
		s.metrics.RecordVerification(string(purpose), "send_failed")
		return "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("failed to send verification code: %s", result.Error))
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}

	s.metrics.RecordVerification(string(purpose), "initiated")
	s.logger.Info("verification initiated",
		zap.String("purpose", string(purpose)),
		zap.String("channel", string(firstChannel)),
		zap.Bool("dual_channel", session.DualChannel()),
	)

	return token, code, nil
}

// Verify checks the submitted code. The attempt counter is incremented and
// persisted before the comparison so ordering cannot leak how many attempts
// remain. Expired sessions are deleted on read.
func (s *VerificationService) Verify(ctx context.Context, token, code string) (*models.VerifyOutcome, error) {
	session, err := s.loadLive(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.Attempts >= s.cfg.MaxAttempts {
		_ = s.sessions.Delete(ctx, token)
		s.metrics.RecordVerification(string(session.Purpose), "locked")
		return nil, appErrors.Clone(appErrors.ErrTooManyAttempts, "too many attempts, start over")
	}

	session.Attempts++
	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}

	if code != session.Code {
		remaining := s.cfg.MaxAttempts - session.Attempts
		if remaining <= 0 {
			_ = s.sessions.Delete(ctx, token)
			s.metrics.RecordVerification(string(session.Purpose), "locked")
			return nil, appErrors.Clone(appErrors.ErrTooManyAttempts, "too many attempts, start over")
		}
		s.metrics.RecordVerification(string(session.Purpose), "invalid_code")
		return nil, appErrors.Clone(appErrors.ErrInvalidCode, fmt.Sprintf("wrong code, %d attempts remaining", remaining))
	}

	if session.DualChannel() && len(session.VerifiedChannel) == 0 {
		return s.advanceToSecondChannel(ctx, session)
	}

	handoffToken, err := s.issueHandoff(session)
	if err != nil {
		return nil, err
	}

	// Deleted on success; Consume tolerates the session already being gone.
	if err := s.sessions.Delete(ctx, token); err != nil {
		s.logger.Warn("failed to delete verified session", zap.Error(err))
	}

	s.metrics.RecordVerification(string(session.Purpose), "verified")
	return &models.VerifyOutcome{Verified: true, HandoffToken: handoffToken}, nil
}

// advanceToSecondChannel issues a fresh code for the remaining contact. The
// channel attempt counter resets; the resend counter and creation time do
// not, so total elapsed-time expiry is unaffected.
func (s *VerificationService) advanceToSecondChannel(ctx context.Context, session *models.VerificationSession) (*models.VerifyOutcome, error) {
	nextChannel := models.ChannelSMS
	if session.CurrentChannel == models.ChannelSMS {
		nextChannel = models.ChannelEmail
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}

	session.VerifiedChannel = append(session.VerifiedChannel, session.CurrentChannel)
	session.CurrentChannel = nextChannel
	session.Code = code
	session.Attempts = 0
	session.State = models.VerificationPartiallyVerified

	if result := s.sendCode(ctx, session, code); !result.Success {
		// Keep the session; the client can retry delivery through resend.
		if err := s.sessions.Put(ctx, session); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("failed to send code to %s: %s", nextChannel, result.Error))
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}

	s.metrics.RecordVerification(string(session.Purpose), "partial")
	return &models.VerifyOutcome{Verified: false, NextChannel: nextChannel}, nil
}

// Resend issues a fresh code for the current channel. The resend cap holds
// even when the cooldown has elapsed.
func (s *VerificationService) Resend(ctx context.Context, token string) error {
	session, err := s.loadLive(ctx, token)
	if err != nil {
		return err
	}

	if session.ResendCount >= s.cfg.MaxResends {
		s.metrics.RecordVerification(string(session.Purpose), "resend_limit")
		return appErrors.Clone(appErrors.ErrResendLimit, "resend limit reached, start over")
	}

	if !session.LastResendAt.IsZero() {
		elapsed := s.now().Sub(session.LastResendAt)
		if elapsed < s.cfg.ResendCooldown {
			wait := int((s.cfg.ResendCooldown - elapsed).Round(time.Second).Seconds())
			s.metrics.RecordVerification(string(session.Purpose), "resend_cooldown")
			return appErrors.Clone(appErrors.ErrResendCooldown, fmt.Sprintf("wait %d seconds before requesting another code", wait))
		}
	}

	code, err := GenerateCode()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}

	if result := s.sendCode(ctx, session, code); !result.Success {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("failed to send verification code: %s", result.Error))
	}

	session.Code = code
	session.ResendCount++
	session.Attempts = 0
	session.LastResendAt = s.now()

	if err := s.sessions.Put(ctx, session); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}

	s.metrics.RecordVerification(string(session.Purpose), "resent")
	return nil
}

type handoffClaims struct {
	Purpose string          `json:"purpose"`
	Session string          `json:"session,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	jwt.RegisteredClaims
}

// Consume validates a hand-off token and returns the embedded payload for
// the caller to finalize. The originating session is deleted if still
// present.
func (s *VerificationService) Consume(ctx context.Context, handoffToken string, expectedPurpose models.VerificationPurpose) (json.RawMessage, error) {
	claims := &handoffClaims{}
	parsed, err := jwt.ParseWithClaims(handoffToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.handoff.Secret), nil
	})
	if err != nil || !parsed.Valid {
		s.metrics.RecordVerification(string(expectedPurpose), "handoff_invalid")
		return nil, appErrors.Clone(appErrors.ErrHandoffInvalid, "hand-off token invalid or expired")
	}
	if claims.Purpose != string(expectedPurpose) {
		s.metrics.RecordVerification(string(expectedPurpose), "handoff_invalid")
		return nil, appErrors.Clone(appErrors.ErrHandoffInvalid, "hand-off token purpose mismatch")
	}

	if claims.Session != "" {
		_ = s.sessions.Delete(ctx, claims.Session)
	}

	s.metrics.RecordVerification(string(expectedPurpose), "consumed")
	return claims.Payload, nil
}

func (s *VerificationService) issueHandoff(session *models.VerificationSession) (string, error) {
	now := s.now()
	claims := &handoffClaims{
		Purpose: string(session.Purpose),
		Session: session.Token,
		Payload: session.Payload,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.handoff.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.handoff.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.handoff.Secret))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign hand-off token")
	}
	return signed, nil
}

// loadLive fetches a session and enforces read-triggered expiry.
func (s *VerificationService) loadLive(ctx context.Context, token string) (*models.VerificationSession, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "session missing or expired, start over")
	}
	if session.Expired(s.cfg.SessionTTL, s.now()) {
		_ = s.sessions.Delete(ctx, token)
		return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "session missing or expired, start over")
	}
	return session, nil
}

func (s *VerificationService) sendCode(ctx context.Context, session *models.VerificationSession, code string) notify.Result {
	switch session.CurrentChannel {
	case models.ChannelSMS:
		body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.cfg.SessionTTL.Minutes()))
		return s.sms.Send(ctx, session.Phone, body)
	default:
		subject := "Your verification code"
		body := fmt.Sprintf("Your verification code is %s.\n\nIt expires in %d minutes. If you did not request this, you can ignore this message.", code, int(s.cfg.SessionTTL.Minutes()))
		return s.email.Send(ctx, session.Email, subject, body, "")
	}
}

// GenerateCode returns a uniform 6-digit code, left-padded with zeros.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateSessionToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
