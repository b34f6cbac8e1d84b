package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gate-tracker/gate_tracker/internal/progress"
	"github.com/gate-tracker/gate_tracker/internal/visitor"
)

// RegisterProgressRoutes wires the authenticated study-hours and curriculum
// endpoints. idem guards the writes against replayed retries.
func RegisterProgressRoutes(r fiber.Router, h *progress.Handler, jwtmw, idem fiber.Handler) {
	hours := r.Group("/study-hours", jwtmw, idem)
	hours.Post("/save-day", h.SaveDay)
	hours.Get("/month/:month/:year", h.Month)
	hours.Get("/all", h.StudyHours)
	hours.Delete("/all", h.DeleteStudyHours)

	curriculum := r.Group("/curriculum", jwtmw, idem)
	curriculum.Post("/save", h.SaveTopic)
	curriculum.Get("/all", h.Curriculum)
	curriculum.Get("/subject/:subject", h.Subject)
}

// RegisterVisitorRoutes wires the anonymous visitor endpoints.
func RegisterVisitorRoutes(r fiber.Router, v *visitor.Handler, h *progress.Handler, idem fiber.Handler) {
	group := r.Group("/visitor", idem)
	group.Post("/register", v.Register)
	group.Post("/study-hours/save", h.SaveDay)
	group.Get("/study-hours/:visitorId/:month/:year", h.Month)
	group.Get("/study-hours/:visitorId", h.StudyHours)
	group.Post("/curriculum/save", h.SaveTopic)
	group.Get("/curriculum/:visitorId", h.Grouped)
	group.Get("/data/:visitorId", h.Export)
	group.Delete("/data/:visitorId", v.Delete)
}
