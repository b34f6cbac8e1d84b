package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/auth"
)

// JWTAuth validates bearer session tokens and stores the subject in Locals.
func JWTAuth(tokens *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return apperr.New(apperr.KindUnauthorized, "Access token required")
		}
		claims, err := tokens.Parse(authz[len("Bearer "):])
		if err != nil {
			return err
		}

		c.Locals(auth.LocalsUserID, claims.Subject)
		c.Locals(auth.LocalsEmail, claims.Email)
		return c.Next()
	}
}
