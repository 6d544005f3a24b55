package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
)

type optOutStudentStub struct {
	student *models.Student

	pendingCode    string
	pendingExpires time.Time
	cleared        bool
	emailOptOut    bool
	smsOptOut      bool
	updated        bool
}

func (r *optOutStudentStub) FindByDestination(context.Context, string) (*models.Student, error) {
	if r.student == nil {
		return nil, sql.ErrNoRows
	}
	cp := *r.student
	return &cp, nil
}

func (r *optOutStudentStub) UpdateOptOut(_ context.Context, _ string, emailOptOut, smsOptOut bool) error {
	r.updated = true
	r.emailOptOut = emailOptOut
	r.smsOptOut = smsOptOut
	return nil
}

func (r *optOutStudentStub) SetPendingOTP(_ context.Context, _ string, code string, expiresAt time.Time) error {
	r.pendingCode = code
	r.pendingExpires = expiresAt
	return nil
}

func (r *optOutStudentStub) ClearPendingOTP(context.Context, string) error {
	r.cleared = true
	return nil
}

func optOutStudent() *models.Student {
	email := "sam@example.com"
	phone := "+15550001111"
	return &models.Student{ID: "stu-1", FullName: "Sam Reyes", Email: &email, Phone: &phone}
}

func TestOptOutStartValidatesDestination(t *testing.T) {
	verification, _, _, _ := newVerificationFixture()
	svc := NewOptOutService(verification, &optOutStudentStub{student: optOutStudent()}, 10*time.Minute, nil)
	ctx := context.Background()

	_, err := svc.Start(ctx, StartOptOutRequest{Destination: "  "})
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Start(ctx, StartOptOutRequest{Destination: "12"})
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestOptOutStartUnknownContact(t *testing.T) {
	verification, _, _, _ := newVerificationFixture()
	svc := NewOptOutService(verification, &optOutStudentStub{}, 10*time.Minute, nil)

	_, err := svc.Start(context.Background(), StartOptOutRequest{Destination: "nobody@example.com"})
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOptOutFullFlowByEmail(t *testing.T) {
	verification, sessions, email, _ := newVerificationFixture()
	students := &optOutStudentStub{student: optOutStudent()}
	svc := NewOptOutService(verification, students, 10*time.Minute, nil)
	ctx := context.Background()

	token, err := svc.Start(ctx, StartOptOutRequest{
		Destination: "sam@example.com",
		EmailOptOut: true,
		SMSOptOut:   false,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Len(t, email.sent, 1)

	// The issued code is mirrored onto the student row for support visibility.
	require.NotEmpty(t, students.pendingCode)
	require.Contains(t, email.sent[0].text, students.pendingCode)

	outcome, err := verification.Verify(ctx, token, students.pendingCode)
	require.NoError(t, err)
	require.True(t, outcome.Verified)

	require.NoError(t, svc.Complete(ctx, outcome.HandoffToken))
	require.True(t, students.updated)
	require.True(t, students.emailOptOut)
	require.False(t, students.smsOptOut)
	require.True(t, students.cleared)

	session, err := sessions.Get(ctx, token)
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestOptOutFullFlowByPhone(t *testing.T) {
	verification, _, _, sms := newVerificationFixture()
	students := &optOutStudentStub{student: optOutStudent()}
	svc := NewOptOutService(verification, students, 10*time.Minute, nil)
	ctx := context.Background()

	token, err := svc.Start(ctx, StartOptOutRequest{
		Destination: "+1 (555) 000-1111",
		SMSOptOut:   true,
	})
	require.NoError(t, err)
	require.Len(t, sms.sent, 1)
	require.Equal(t, "+15550001111", sms.sent[0].to)

	outcome, err := verification.Verify(ctx, token, students.pendingCode)
	require.NoError(t, err)

	require.NoError(t, svc.Complete(ctx, outcome.HandoffToken))
	require.False(t, students.emailOptOut)
	require.True(t, students.smsOptOut)
}

func TestOptOutCompleteRejectsRegistrationToken(t *testing.T) {
	verification, _, _, _ := newVerificationFixture()
	students := &optOutStudentStub{student: optOutStudent()}
	svc := NewOptOutService(verification, students, 10*time.Minute, nil)
	ctx := context.Background()

	// A registration hand-off must not drive an opt-out completion.
	regToken, code, err := verification.Initiate(ctx, models.PurposeRegistration, "sam@example.com", "", nil)
	require.NoError(t, err)
	outcome, err := verification.Verify(ctx, regToken, code)
	require.NoError(t, err)

	err = svc.Complete(ctx, outcome.HandoffToken)
	require.Equal(t, appErrors.ErrHandoffInvalid.Code, appErrors.FromError(err).Code)
	require.False(t, students.updated)
}
