package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cert-reminder-api/internal/service"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
	"github.com/noah-isme/cert-reminder-api/pkg/response"
)

// RegistrationHandler exposes the verified self-service registration flow.
type RegistrationHandler struct {
	registration *service.RegistrationService
	verification *service.VerificationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registration *service.RegistrationService, verification *service.VerificationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration, verification: verification}
}

// Start opens a registration verification session.
func (h *RegistrationHandler) Start(c *gin.Context) {
	var req service.StartRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.registration.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

type verifyRequest struct {
	Token string `json:"token" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// Verify checks a submitted code against the session.
func (h *RegistrationHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	outcome, err := h.verification.Verify(c.Request.Context(), req.Token, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome)
}

type resendRequest struct {
	Token string `json:"token" binding:"required"`
}

// Resend issues a fresh code for the session's current channel.
func (h *RegistrationHandler) Resend(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.verification.Resend(c.Request.Context(), req.Token); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type completeRequest struct {
	HandoffToken string `json:"handoff_token" binding:"required"`
}

// Complete consumes the hand-off token and finalizes the registration.
func (h *RegistrationHandler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.registration.Complete(c.Request.Context(), req.HandoffToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
