package service

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	"github.com/noah-isme/cert-reminder-api/internal/notify"
	"github.com/noah-isme/cert-reminder-api/internal/store"
	"github.com/noah-isme/cert-reminder-api/pkg/config"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
)

type sentEmail struct {
	to      string
	subject string
	text    string
	html    string
}

type emailSenderStub struct {
	sent []sentEmail
	fail bool
}

func (e *emailSenderStub) Send(_ context.Context, to, subject, textBody, htmlBody string) notify.Result {
	if e.fail {
		return notify.Failure("smtp unavailable")
	}
	e.sent = append(e.sent, sentEmail{to: to, subject: subject, text: textBody, html: htmlBody})
	return notify.Result{Success: true, MessageID: "email-msg"}
}

type sentSMS struct {
	to   string
	body string
}

type smsSenderStub struct {
	sent []sentSMS
	fail bool
}

func (s *smsSenderStub) Send(_ context.Context, to, body string) notify.Result {
	if s.fail {
		return notify.Failure("gateway unavailable")
	}
	s.sent = append(s.sent, sentSMS{to: to, body: body})
	return notify.Result{Success: true, MessageID: "sms-msg"}
}

func newVerificationFixture() (*VerificationService, *store.MemoryStore, *emailSenderStub, *smsSenderStub) {
	sessions := store.NewMemoryStore()
	email := &emailSenderStub{}
	sms := &smsSenderStub{}
	svc := NewVerificationService(sessions, email, sms, nil, nil,
		config.VerificationConfig{
			SessionTTL:     10 * time.Minute,
			MaxAttempts:    5,
			MaxResends:     3,
			ResendCooldown: time.Minute,
		},
		config.HandoffConfig{Secret: "test-secret", TTL: 5 * time.Minute, Issuer: "test"},
	)
	return svc, sessions, email, sms
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

func TestGenerateCodeShape(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Regexp(t, pattern, code)
	}
}

func TestVerificationSingleChannelSuccess(t *testing.T) {
	svc, sessions, email, _ := newVerificationFixture()
	ctx := context.Background()

	token, code, err := svc.Initiate(ctx, models.PurposeRegistration, "sam@example.com", "", json.RawMessage(`{"full_name":"Sam"}`))
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Regexp(t, `^\d{6}$`, code)
	require.Len(t, email.sent, 1)
	require.Contains(t, email.sent[0].text, code)

	outcome, err := svc.Verify(ctx, token, code)
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.NotEmpty(t, outcome.HandoffToken)

	// Session is gone after success.
	session, err := sessions.Get(ctx, token)
	require.NoError(t, err)
	require.Nil(t, session)

	payload, err := svc.Consume(ctx, outcome.HandoffToken, models.PurposeRegistration)
	require.NoError(t, err)
	require.JSONEq(t, `{"full_name":"Sam"}`, string(payload))
}

func TestVerificationWrongCodeCountsDown(t *testing.T) {
	svc, sessions, _, _ := newVerificationFixture()
	ctx := context.Background()

	token, code, err := svc.Initiate(ctx, models.PurposeRegistration, "sam@example.com", "", nil)
	require.NoError(t, err)

	bad := wrongCode(code)
	for i := 1; i <= 4; i++ {
		_, verr := svc.Verify(ctx, token, bad)
		require.Equal(t, appErrors.ErrInvalidCode.Code, errCode(t, verr))
		session, gerr := sessions.Get(ctx, token)
		require.NoError(t, gerr)
		require.Equal(t, i, session.Attempts)
	}

	// Fifth miss exhausts the budget and destroys the session.
	_, err = svc.Verify(ctx, token, bad)
	require.Equal(t, appErrors.ErrTooManyAttempts.Code, errCode(t, err))

	_, err = svc.Verify(ctx, token, code)
	require.Equal(t, appErrors.ErrSessionNotFound.Code, errCode(t, err))
}

func TestVerificationExpiredSessionDeletedOnRead(t *testing.T) {
	svc, sessions, _, _ := newVerificationFixture()
	ctx := context.Background()

	token, code, err := svc.Initiate(ctx, models.PurposeOptOut, "sam@example.com", "", nil)
	require.NoError(t, err)

	base := time.Now().UTC()
	svc.now = func() time.Time { return base.Add(11 * time.Minute) }

	_, err = svc.Verify(ctx, token, code)
	require.Equal(t, appErrors.ErrSessionNotFound.Code, errCode(t, err))

	session, err := sessions.Get(ctx, token)
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestVerificationDualChannelSequence(t *testing.T) {
	svc, sessions, email, sms := newVerificationFixture()
	ctx := context.Background()

	token, firstCode, err := svc.Initiate(ctx, models.PurposeRegistration, "sam@example.com", "+15550001111", nil)
	require.NoError(t, err)
	require.Len(t, email.sent, 1)
	require.Empty(t, sms.sent)

	outcome, err := svc.Verify(ctx, token, firstCode)
	require.NoError(t, err)
	require.False(t, outcome.Verified)
	require.Equal(t, models.ChannelSMS, outcome.NextChannel)
	require.Empty(t, outcome.HandoffToken)
	require.Len(t, sms.sent, 1)

	session, err := sessions.Get(ctx, token)
	require.NoError(t, err)
	require.Equal(t, models.VerificationPartiallyVerified, session.State)
	require.Equal(t, 0, session.Attempts)
	require.NotEqual(t, firstCode, session.Code)
	require.Contains(t, sms.sent[0].body, session.Code)

	final, err := svc.Verify(ctx, token, session.Code)
	require.NoError(t, err)
	require.True(t, final.Verified)
	require.NotEmpty(t, final.HandoffToken)
}

func TestVerificationResendCooldownAndLimit(t *testing.T) {
	svc, sessions, email, _ := newVerificationFixture()
	ctx := context.Background()

	base := time.Now().UTC()
	now := base
	svc.now = func() time.Time { return now }

	token, _, err := svc.Initiate(ctx, models.PurposeRegistration, "sam@example.com", "", nil)
	require.NoError(t, err)

	// First resend has no prior resend timestamp, so no cooldown applies.
	require.NoError(t, svc.Resend(ctx, token))
	require.Len(t, email.sent, 2)

	err = svc.Resend(ctx, token)
	require.Equal(t, appErrors.ErrResendCooldown.Code, errCode(t, err))

	now = base.Add(61 * time.Second)
	require.NoError(t, svc.Resend(ctx, token))
	now = base.Add(122 * time.Second)
	require.NoError(t, svc.Resend(ctx, token))

	// The cap holds even with the cooldown long elapsed.
	now = base.Add(5 * time.Minute)
	err = svc.Resend(ctx, token)
	require.Equal(t, appErrors.ErrResendLimit.Code, errCode(t, err))

	session, err := sessions.Get(ctx, token)
	require.NoError(t, err)
	require.Equal(t, 3, session.ResendCount)
}

func TestVerificationResendResetsAttempts(t *testing.T) {
	svc, sessions, _, _ := newVerificationFixture()
	ctx := context.Background()

	token, code, err := svc.Initiate(ctx, models.PurposeRegistration, "sam@example.com", "", nil)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, token, wrongCode(code))
	require.Equal(t, appErrors.ErrInvalidCode.Code, errCode(t, err))

	require.NoError(t, svc.Resend(ctx, token))

	session, err := sessions.Get(ctx, token)
	require.NoError(t, err)
	require.Equal(t, 0, session.Attempts)
	require.NotEqual(t, code, session.Code)
}

func TestVerificationConsumePurposeMismatch(t *testing.T) {
	svc, _, _, _ := newVerificationFixture()
	ctx := context.Background()

	token, code, err := svc.Initiate(ctx, models.PurposeOptOut, "sam@example.com", "", json.RawMessage(`{"student_id":"stu-1"}`))
	require.NoError(t, err)

	outcome, err := svc.Verify(ctx, token, code)
	require.NoError(t, err)
	require.True(t, outcome.Verified)

	_, err = svc.Consume(ctx, outcome.HandoffToken, models.PurposeRegistration)
	require.Equal(t, appErrors.ErrHandoffInvalid.Code, errCode(t, err))

	_, err = svc.Consume(ctx, "not-a-jwt", models.PurposeOptOut)
	require.Equal(t, appErrors.ErrHandoffInvalid.Code, errCode(t, err))
}

func TestVerificationInitiateFailedSendDiscardsSession(t *testing.T) {
	svc, sessions, email, _ := newVerificationFixture()
	email.fail = true
	ctx := context.Background()

	_, _, err := svc.Initiate(ctx, models.PurposeRegistration, "sam@example.com", "", nil)
	require.Error(t, err)
	require.Equal(t, 0, sessions.Len())
}

func TestVerificationInitiateRequiresContact(t *testing.T) {
	svc, _, _, _ := newVerificationFixture()
	_, _, err := svc.Initiate(context.Background(), models.PurposeRegistration, "", "", nil)
	require.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
}
