package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// AdminHandler serves the read-only account listing for staff.
type AdminHandler struct {
	admin *service.AdminService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// ListAccounts handles GET /api/v1/users.
func (h *AdminHandler) ListAccounts(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	accounts, err := h.admin.ListAccounts(c.UserContext(), principal.Account)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountListResponse(accounts)})
}

// GetAccount handles GET /api/v1/users/:id.
func (h *AdminHandler) GetAccount(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	account, err := h.admin.GetAccount(c.UserContext(), principal.Account, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}
