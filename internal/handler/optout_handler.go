package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cert-reminder-api/internal/service"
	appErrors "github.com/noah-isme/cert-reminder-api/pkg/errors"
	"github.com/noah-isme/cert-reminder-api/pkg/response"
)

// OptOutHandler exposes the verified opt-out flow.
type OptOutHandler struct {
	optOut       *service.OptOutService
	verification *service.VerificationService
}

// NewOptOutHandler constructs OptOutHandler.
func NewOptOutHandler(optOut *service.OptOutService, verification *service.VerificationService) *OptOutHandler {
	return &OptOutHandler{optOut: optOut, verification: verification}
}

// Start opens an opt-out verification session for the given contact.
func (h *OptOutHandler) Start(c *gin.Context) {
	var req service.StartOptOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	token, err := h.optOut.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token})
}

// Verify checks a submitted code against the session.
func (h *OptOutHandler) Verify(c *gin.Context) {
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

// Complete consumes the hand-off token and applies the opt-out change.
func (h *OptOutHandler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.optOut.Complete(c.Request.Context(), req.HandoffToken); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
