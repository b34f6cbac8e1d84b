package visitor

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
)

// Handler exposes visitor registration and deletion.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	VisitorID string `json:"visitorId"`
}

// Register creates or touches a visitor.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	v, created, err := h.svc.Register(c.UserContext(), req.VisitorID)
	if err != nil {
		return err
	}
	message := "Welcome back"
	if created {
		message = "New visitor registered"
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": message, "visitorId": v.ID, "isNew": created})
}

// Delete removes every row owned by the visitor.
func (h *Handler) Delete(c *fiber.Ctx) error {
	erased, err := h.svc.Delete(c.UserContext(), c.Params("visitorId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "All data deleted successfully", "deleted": erased})
}
