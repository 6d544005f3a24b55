package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
)

type templateRepoStub struct {
	templates map[string]*models.MessageTemplate
	upserted  []*models.MessageTemplate
}

func templateKey(classType models.ClassType, channel models.Channel) string {
	return string(classType) + "|" + string(channel)
}

func (r *templateRepoStub) FindFor(_ context.Context, classType models.ClassType, channel models.Channel) (*models.MessageTemplate, error) {
	if tpl, ok := r.templates[templateKey(classType, channel)]; ok {
		cp := *tpl
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (r *templateRepoStub) Upsert(_ context.Context, tpl *models.MessageTemplate) error {
	r.upserted = append(r.upserted, tpl)
	return nil
}

func TestTemplateRenderSubstitutesKnownKeys(t *testing.T) {
	svc := NewTemplateService(&templateRepoStub{}, nil)

	out := svc.Render("Hi {{studentName}}, your {{classTypeName}} class is due. Book: {{scheduleLink}}", map[string]string{
		"studentName":   "Sam",
		"classTypeName": "Basic Life Support",
		"scheduleLink":  "https://example.com/schedule",
	})
	require.Equal(t, "Hi Sam, your Basic Life Support class is due. Book: https://example.com/schedule", out)
}

func TestTemplateRenderMissingKeyRendersEmpty(t *testing.T) {
	svc := NewTemplateService(&templateRepoStub{}, nil)

	out := svc.Render("Hi {{name}}, class {{classTypeName}}", map[string]string{"name": "Sam"})
	require.Equal(t, "Hi Sam, class ", out)
}

func TestTemplateResolveFallsBackToDefault(t *testing.T) {
	svc := NewTemplateService(&templateRepoStub{}, nil)

	resolved, err := svc.Resolve(context.Background(), models.ClassTypeBLS, models.ChannelEmail)
	require.NoError(t, err)
	require.Contains(t, resolved.Subject, "Basic Life Support")
	require.Contains(t, resolved.Body, "{{studentName}}")
	require.Contains(t, resolved.Body, "{{scheduleLink}}")

	sms, err := svc.Resolve(context.Background(), models.ClassTypeNRP, models.ChannelSMS)
	require.NoError(t, err)
	require.Empty(t, sms.Subject)
	require.Contains(t, sms.Body, "Neonatal Resuscitation Program")
}

func TestTemplateResolveUsesConfiguredTemplate(t *testing.T) {
	subject := "Custom subject"
	repo := &templateRepoStub{templates: map[string]*models.MessageTemplate{
		templateKey(models.ClassTypeACLS, models.ChannelEmail): {
			ClassType: models.ClassTypeACLS,
			Channel:   models.ChannelEmail,
			Subject:   &subject,
			Body:      "Custom body for {{studentName}}",
			Variables: types.JSONText(`{"orgName":"Heart Center"}`),
		},
	}}
	svc := NewTemplateService(repo, nil)

	resolved, err := svc.Resolve(context.Background(), models.ClassTypeACLS, models.ChannelEmail)
	require.NoError(t, err)
	require.Equal(t, subject, resolved.Subject)
	require.Equal(t, "Heart Center", resolved.Variables["orgName"])
}

func TestTemplateUpsertValidation(t *testing.T) {
	repo := &templateRepoStub{}
	svc := NewTemplateService(repo, nil)

	err := svc.Upsert(context.Background(), &models.MessageTemplate{ClassType: "YOGA", Channel: models.ChannelEmail})
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = svc.Upsert(context.Background(), &models.MessageTemplate{ClassType: models.ClassTypeBLS, Channel: "FAX"})
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	// Email templates need a subject.
	err = svc.Upsert(context.Background(), &models.MessageTemplate{ClassType: models.ClassTypeBLS, Channel: models.ChannelEmail, Body: "b"})
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	subject := "s"
	err = svc.Upsert(context.Background(), &models.MessageTemplate{ClassType: models.ClassTypeBLS, Channel: models.ChannelEmail, Subject: &subject, Body: "b"})
	require.NoError(t, err)
	require.Len(t, repo.upserted, 1)

	err = svc.Upsert(context.Background(), &models.MessageTemplate{ClassType: models.ClassTypeBLS, Channel: models.ChannelSMS, Body: "short"})
	require.NoError(t, err)
	require.Len(t, repo.upserted, 2)
}

func TestTemplateRenderHTMLWrapsContent(t *testing.T) {
	svc := NewTemplateService(&templateRepoStub{}, nil)

	html, err := svc.RenderHTML("Renew soon", "Line one\nLine two", "https://example.com/schedule", "https://example.com/opt-out")
	require.NoError(t, err)
	require.Contains(t, html, "Renew soon")
	require.Contains(t, html, "https://example.com/schedule")
	require.Contains(t, html, "https://example.com/opt-out")
	require.Contains(t, html, "<!DOCTYPE html>")
}
