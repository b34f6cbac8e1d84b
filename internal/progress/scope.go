package progress

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/validation"
)

// Scope resolves the actor a request acts for.
type Scope interface {
	Resolve(c *fiber.Ctx) (Actor, error)
}

// UserScope reads the authenticated user id stored in Locals by the JWT
// middleware.
type UserScope struct {
	LocalsKey string
}

func (s UserScope) Resolve(c *fiber.Ctx) (Actor, error) {
	id, _ := c.Locals(s.LocalsKey).(string)
	if id == "" {
		return Actor{}, apperr.New(apperr.KindUnauthorized, "Access token required")
	}
	return User(id), nil
}

// VisitorScope reads the visitor id from the :visitorId route parameter or
// the visitorId body field. Touch, when set, runs on POST requests so a
// save implicitly registers the visitor.
type VisitorScope struct {
	Touch func(ctx context.Context, visitorID string) error
}

type visitorBody struct {
	VisitorID string `json:"visitorId"`
}

func (s VisitorScope) Resolve(c *fiber.Ctx) (Actor, error) {
	raw := c.Params("visitorId")
	if raw == "" {
		var body visitorBody
		if err := c.BodyParser(&body); err != nil {
			return Actor{}, apperr.Validation("body", "Invalid request body")
		}
		raw = body.VisitorID
	}
	id, err := validation.VisitorID(raw)
	if err != nil {
		return Actor{}, err
	}
	if s.Touch != nil && c.Method() == fiber.MethodPost {
		if err := s.Touch(c.UserContext(), id); err != nil {
			return Actor{}, err
		}
	}
	return Visitor(id), nil
}
