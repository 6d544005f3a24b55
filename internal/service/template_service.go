package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"regexp"

	"go.uber.org/zap"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
)

type templateRepository interface {
	FindFor(ctx context.Context, classType models.ClassType, channel models.Channel) (*models.MessageTemplate, error)
	Upsert(ctx context.Context, tpl *models.MessageTemplate) error
}

// ResolvedTemplate is the message content selected for one dispatch.
type ResolvedTemplate struct {
	Subject      string
	Body         string
	ScheduleLink string
	Variables    map[string]string
}

var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// The HTML shell is fixed; only the resolved text flows into it.
var emailHTMLTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333; margin: 0; padding: 0;">
  <div style="max-width: 600px; margin: 0 auto; padding: 24px;">
    <h2 style="color: #1a5276;">{{.Subject}}</h2>
    <p style="white-space: pre-line;">{{.Body}}</p>
    {{if .ScheduleLink}}<p><a href="{{.ScheduleLink}}" style="background: #1a5276; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Schedule your renewal</a></p>{{end}}
    {{if .OptOutLink}}<p style="font-size: 12px; color: #888;"><a href="{{.OptOutLink}}">Unsubscribe from these reminders</a></p>{{end}}
  </div>
</body>
</html>`))

// TemplateService resolves and renders reminder message content.
type TemplateService struct {
	repo   templateRepository
	logger *zap.Logger
}

// NewTemplateService constructs the service.
func NewTemplateService(repo templateRepository, logger *zap.Logger) *TemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{repo: repo, logger: logger}
}

// Resolve returns the configured template for the class type and channel, or
// the built-in default when none is configured.
func (s *TemplateService) Resolve(ctx context.Context, classType models.ClassType, channel models.Channel) (*ResolvedTemplate, error) {
	tpl, err := s.repo.FindFor(ctx, classType, channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultTemplate(classType, channel), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	resolved := &ResolvedTemplate{
		Body:         tpl.Body,
		ScheduleLink: tpl.ScheduleLink,
		Variables:    map[string]string{},
	}
	if tpl.Subject != nil {
		resolved.Subject = *tpl.Subject
	}
	if len(tpl.Variables) > 0 {
		if err := json.Unmarshal(tpl.Variables, &resolved.Variables); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed template variables")
		}
	}
	return resolved, nil
}

// Upsert stores a custom template after checking its key.
func (s *TemplateService) Upsert(ctx context.Context, tpl *models.MessageTemplate) error {
	if !tpl.ClassType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown class type %q", tpl.ClassType))
	}
	if !tpl.Channel.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown channel %q", tpl.Channel))
	}
	if tpl.Channel == models.ChannelEmail && (tpl.Subject == nil || *tpl.Subject == "") {
		return appErrors.Clone(appErrors.ErrValidation, "subject required for email templates")
	}
	if err := s.repo.Upsert(ctx, tpl); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store template")
	}
	return nil
}

// Render substitutes every {{key}} occurrence with the matching variable.
// Lookups are case-sensitive; unknown keys render as the empty string.
func (s *TemplateService) Render(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[key]
	})
}

// RenderHTML wraps the rendered subject and body in the fixed visual email
// shell. The text rendering remains the fallback body.
func (s *TemplateService) RenderHTML(subject, body, scheduleLink, optOutLink string) (string, error) {
	var buf bytes.Buffer
	err := emailHTMLTemplate.Execute(&buf, struct {
		Subject      string
		Body         string
		ScheduleLink string
		OptOutLink   string
	}{subject, body, scheduleLink, optOutLink})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render email html")
	}
	return buf.String(), nil
}

func defaultTemplate(classType models.ClassType, channel models.Channel) *ResolvedTemplate {
	name := classType.DisplayName()
	if channel == models.ChannelSMS {
		return &ResolvedTemplate{
			Body:      fmt.Sprintf("Hi {{studentName}}, your %s certification is due for renewal. Schedule at {{scheduleLink}}. Reply via {{optOutLink}} to stop reminders.", name),
			Variables: map[string]string{},
		}
	}
	return &ResolvedTemplate{
		Subject: fmt.Sprintf("Time to renew your %s certification", name),
		Body: fmt.Sprintf("Hi {{studentName}},\n\nOur records show your %s certification is coming up for renewal. "+
			"Classes fill up quickly, so we recommend scheduling soon.\n\nSchedule here: {{scheduleLink}}\n\n"+
			"If you no longer want these reminders, visit {{optOutLink}}.", name),
		Variables: map[string]string{},
	}
}
