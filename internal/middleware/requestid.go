package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/audit"
)

const requestIDHeader = apperr.RequestIDKey

// RequestID ensures each request has a stable request identifier for tracing and logging.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(requestIDHeader, reqID)

		return c.Next()
	}
}

// ClientContext stores the client address in the request context so audit
// events emitted by services carry it.
func ClientContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(audit.WithIP(c.UserContext(), c.IP()))
		return c.Next()
	}
}
