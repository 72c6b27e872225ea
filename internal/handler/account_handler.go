package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/authd-api/internal/models"
	"github.com/noah-isme/authd-api/internal/service"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
	"github.com/noah-isme/authd-api/pkg/response"
)

// AccountHandler exposes the password reset and email verification flows.
type AccountHandler struct {
	passwordReset     *service.PasswordResetService
	emailVerification *service.EmailVerificationService
}

// NewAccountHandler creates a new handler.
func NewAccountHandler(passwordReset *service.PasswordResetService, emailVerification *service.EmailVerificationService) *AccountHandler {
	return &AccountHandler{passwordReset: passwordReset, emailVerification: emailVerification}
}

// ForgotPassword godoc
// @Summary Request password reset
// @Description Send a password reset link; responds identically for unknown accounts
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.ForgotPasswordRequest true "Forgot password payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/password/forgot [post]
func (h *AccountHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid forgot password payload"))
		return
	}

	if err := h.passwordReset.Request(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, gin.H{"status": "if the account exists, a reset link has been sent"})
}

// ResetPassword godoc
// @Summary Complete password reset
// @Description Consume the reset token and set a new password
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.ResetPasswordRequest true "Reset password payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/password/reset [post]
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reset password payload"))
		return
	}

	if err := h.passwordReset.Reset(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"status": "password updated"})
}

// RequestVerification godoc
// @Summary Request email verification
// @Description Send a verification link; responds identically for unknown accounts
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.VerifyEmailRequest true "Verification request payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/verify/request [post]
func (h *AccountHandler) RequestVerification(c *gin.Context) {
	var req models.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
		return
	}

	if err := h.emailVerification.Request(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, gin.H{"status": "if the account exists, a verification link has been sent"})
}

// ConfirmVerification godoc
// @Summary Complete email verification
// @Description Consume the verification token and mark the address verified
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.ConfirmEmailRequest true "Verification confirm payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/verify/confirm [post]
func (h *AccountHandler) ConfirmVerification(c *gin.Context) {
	var req models.ConfirmEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
		return
	}

	if err := h.emailVerification.Verify(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"status": "email verified"})
}
