package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/domain"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// HasElevatedPrivilege reports whether the account may use the administrative surface.
// The role field is descriptive only; staff and superuser flags decide.
func HasElevatedPrivilege(account *domain.Account) bool {
	if account == nil {
		return false
	}
	return account.IsStaff || account.IsSuperuser
}

// RequireAuthenticated ensures a principal was loaded.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequireElevated ensures the caller is staff or superuser.
func RequireElevated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !HasElevatedPrivilege(principal.Account) {
			return apperrors.NewForbidden("you do not have permission to perform this action")
		}
		return c.Next()
	}
}
