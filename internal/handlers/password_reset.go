package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/storefront/internal/services"
	appErrors "github.com/charlesng35/storefront/pkg/errors"
	"github.com/charlesng35/storefront/pkg/response"
)

const (
	forgotPasswordMessage = "If an account exists for that email, you will receive password reset instructions shortly."
	resetPasswordMessage  = "Your password has been reset. You can now sign in with your new password."
)

var (
	errInvalidEmail       = appErrors.New("INVALID_EMAIL", "Please enter a valid email address", http.StatusBadRequest)
	errEmailDelivery      = appErrors.New("EMAIL_DELIVERY_FAILED", "We could not send the reset email, please try again later", http.StatusInternalServerError)
	errResetInput         = appErrors.NewBadRequest("Customer id, reset token and password are required")
	errPasswordTooShort   = appErrors.New("PASSWORD_TOO_SHORT", "Password must be at least 8 characters", http.StatusBadRequest)
	errResetTokenInvalid  = appErrors.New("INVALID_TOKEN", "Invalid or expired token", http.StatusBadRequest)
	errResetTokenMismatch = appErrors.New("TOKEN_MISMATCH", "Token does not belong to this customer", http.StatusBadRequest)
	errInvalidCustomerID  = appErrors.New("INVALID_CUSTOMER_ID", "Invalid customer id", http.StatusBadRequest)
	errCustomerNotFound   = appErrors.New("CUSTOMER_NOT_FOUND", "Customer not found", http.StatusNotFound)
	errDirectoryAuth      = appErrors.New("AUTHENTICATION_ERROR", "Authentication error, please contact the administrator", http.StatusInternalServerError)
	errPasswordPolicy     = appErrors.New("PASSWORD_POLICY", "Password does not meet the requirements", http.StatusBadRequest)
)

// PasswordResetHandler serves the forgot-password and reset-password endpoints.
type PasswordResetHandler struct {
	svc *services.PasswordResetService
}

// NewPasswordResetHandler constructs a handler around the reset service.
func NewPasswordResetHandler(svc *services.PasswordResetService) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc}
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,contains=@"`
}

type resetPasswordRequest struct {
	CustomerID string `json:"customerId" validate:"required"`
	ResetToken string `json:"resetToken" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// Forgot handles POST /api/auth/password/forgot. The response is identical whether or
// not the address belongs to a customer.
func (h *PasswordResetHandler) Forgot(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.RequestReset(requestContext(c), req.Email); err != nil {
		response.Error(c, resetError(err))
		return
	}

	response.Success(c, http.StatusOK, forgotPasswordMessage, nil)
}

// Validate handles GET /api/auth/password/reset?token=&id= without consuming the token.
func (h *PasswordResetHandler) Validate(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	customerID := strings.TrimSpace(c.Query("id"))

	record, err := h.svc.ValidateToken(requestContext(c), token, customerID)
	if err != nil {
		appErr := resetError(err)
		response.JSON(c, appErr.StatusCode, response.Body{
			"valid": false,
			"error": appErr.Message,
		})
		return
	}

	response.JSON(c, http.StatusOK, response.Body{
		"valid": true,
		"email": record.Email,
	})
}

// Reset handles POST /api/auth/password/reset.
func (h *PasswordResetHandler) Reset(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.svc.CompleteReset(requestContext(c), services.CompleteResetInput{
		CustomerID: req.CustomerID,
		Token:      req.ResetToken,
		Password:   req.Password,
	})
	if err != nil {
		response.Error(c, resetError(err))
		return
	}

	response.Success(c, http.StatusOK, resetPasswordMessage, response.Body{
		"customer": response.Body{
			"id":    result.CustomerID,
			"email": result.Email,
		},
	})
}

func resetError(err error) *appErrors.AppError {
	switch {
	case errors.Is(err, services.ErrInvalidEmail):
		return errInvalidEmail
	case errors.Is(err, services.ErrResetNotConfigured):
		return appErrors.ErrServerConfiguration
	case errors.Is(err, services.ErrEmailDelivery):
		return errEmailDelivery
	case errors.Is(err, services.ErrResetInputRequired):
		return errResetInput
	case errors.Is(err, services.ErrPasswordTooShort):
		return errPasswordTooShort
	case errors.Is(err, services.ErrResetTokenInvalid):
		return errResetTokenInvalid
	case errors.Is(err, services.ErrResetTokenMismatch):
		return errResetTokenMismatch
	case errors.Is(err, services.ErrInvalidCustomerID):
		return errInvalidCustomerID
	case errors.Is(err, services.ErrCustomerNotFound):
		return errCustomerNotFound
	case errors.Is(err, services.ErrDirectoryAuth):
		return errDirectoryAuth
	case errors.Is(err, services.ErrPasswordPolicy):
		return errPasswordPolicy
	case errors.Is(err, services.ErrDirectoryUnavailable), errors.Is(err, services.ErrTokenStorage):
		return appErrors.ErrRetryLater
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
