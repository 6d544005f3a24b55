package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cert-reminder-api/internal/models"
	"github.com/noah-isme/cert-reminder-api/internal/service"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
	"github.com/noah-isme/cert-reminder-api/pkg/response"
)

// TemplateHandler manages custom message templates.
type TemplateHandler struct {
	templates *service.TemplateService
}

// NewTemplateHandler constructs TemplateHandler.
func NewTemplateHandler(templates *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// Upsert stores a custom template for a (class type, channel) pair.
func (h *TemplateHandler) Upsert(c *gin.Context) {
	var tpl models.MessageTemplate
	if err := c.ShouldBindJSON(&tpl); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.templates.Upsert(c.Request.Context(), &tpl); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl)
}

// Preview resolves and renders the message for a class type and channel
// using sample variables, so admins can see what students will receive.
func (h *TemplateHandler) Preview(c *gin.Context) {
	classType := models.ClassType(c.Query("class_type"))
	channel := models.Channel(c.Query("channel"))
	if !classType.Valid() || !channel.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class_type and channel are required"))
		return
	}

	resolved, err := h.templates.Resolve(c.Request.Context(), classType, channel)
	if err != nil {
		response.Error(c, err)
		return
	}

	vars := map[string]string{
		"classTypeName": classType.DisplayName(),
		"studentName":   "Jordan Avery",
		"scheduleLink":  resolved.ScheduleLink,
	}
	for k, v := range resolved.Variables {
		if _, exists := vars[k]; !exists {
			vars[k] = v
		}
	}

	preview := gin.H{
		"subject": h.templates.Render(resolved.Subject, vars),
		"body":    h.templates.Render(resolved.Body, vars),
	}
	response.JSON(c, http.StatusOK, preview)
}
