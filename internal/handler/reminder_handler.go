package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cert-reminder-api/internal/service"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
	"github.com/noah-isme/cert-reminder-api/pkg/response"
)

// ReminderHandler exposes the administrative dispatch endpoints.
type ReminderHandler struct {
	dispatch *service.DispatchService
}

// NewReminderHandler constructs ReminderHandler.
func NewReminderHandler(dispatch *service.DispatchService) *ReminderHandler {
	return &ReminderHandler{dispatch: dispatch}
}

// Send force-dispatches one reminder regardless of its current status.
func (h *ReminderHandler) Send(c *gin.Context) {
	status, err := h.dispatch.Send(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": status})
}

// RunDue triggers a batch run outside the cron cadence.
func (h *ReminderHandler) RunDue(c *gin.Context) {
	summary, err := h.dispatch.RunDue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// Reschedule moves a reminder to a new date and reopens it.
func (h *ReminderHandler) Reschedule(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.dispatch.Reschedule(c.Request.Context(), c.Param("id"), req.ScheduledAt); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reset purges the delivery ledger and returns the reminder to PENDING.
func (h *ReminderHandler) Reset(c *gin.Context) {
	if err := h.dispatch.Reset(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeliveryDetails returns the reminder with its audit ledger.
func (h *ReminderHandler) DeliveryDetails(c *gin.Context) {
	details, err := h.dispatch.GetDeliveryDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details)
}
