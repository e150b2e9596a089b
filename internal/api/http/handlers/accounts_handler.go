package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// AccountsHandler exposes the public account lifecycle endpoints.
type AccountsHandler struct {
	accounts *service.AccountService
	sessions *service.SessionService
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(accounts *service.AccountService, sessions *service.SessionService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, sessions: sessions}
}

func invalidPayload() error {
	return apperrors.NewValidationError("invalid payload", nil)
}

// tokenNotFoundAsBadRequest keeps unknown-token answers on 400 like the other token failures.
func tokenNotFoundAsBadRequest(err error) error {
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return apperrors.WithStatus(err, http.StatusBadRequest)
	}
	return err
}

// Register handles POST /api/v1/register.
func (h *AccountsHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	_, err := h.accounts.Register(c.UserContext(), service.RegisterRequest{
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Phone:                req.Phone,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.MessageResponse{
		Message: "User registered successfully. Please check your email to verify your account.",
	})
}

// VerifyEmail handles GET /api/v1/verify-email?code=.
func (h *AccountsHandler) VerifyEmail(c *fiber.Ctx) error {
	if _, err := h.accounts.VerifyEmail(c.UserContext(), c.Query("code")); err != nil {
		return tokenNotFoundAsBadRequest(err)
	}
	return c.JSON(dto.MessageResponse{Message: "Email verified successfully."})
}

// Login handles POST /api/v1/login.
func (h *AccountsHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	account, err := h.accounts.Login(c.UserContext(), service.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}

	token, expiresAt, err := h.sessions.IssueAccessToken(account)
	if err != nil {
		return err
	}

	return c.JSON(dto.LoginResponse{
		ID:          account.ID,
		Email:       account.Email,
		Role:        account.Role,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	})
}

// Logout handles POST /api/v1/logout.
func (h *AccountsHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.sessions.Logout(c.UserContext(), principal.Token); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully."})
}

// RequestPasswordReset handles POST /api/v1/password-reset.
func (h *AccountsHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	if err := h.accounts.RequestPasswordReset(c.UserContext(), service.PasswordResetRequest{Email: req.Email}); err != nil {
		return tokenNotFoundAsBadRequest(err)
	}
	return c.JSON(dto.MessageResponse{Message: "Password reset link sent to your email."})
}

// ConfirmPasswordReset handles POST /api/v1/password-reset-confirm.
func (h *AccountsHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	err := h.accounts.ConfirmPasswordReset(c.UserContext(), service.PasswordResetConfirmRequest{
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		return tokenNotFoundAsBadRequest(err)
	}
	return c.JSON(dto.MessageResponse{Message: "Password has been reset successfully."})
}
