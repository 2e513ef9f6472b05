package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-scheduler/internal/domain"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// RequireRole ensures the principal holds at least the given role.
func RequireRole(minimum domain.OperatorRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Role.AtLeast(minimum) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
