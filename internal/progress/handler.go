package progress

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
)

// Handler exposes the progress endpoints for one Scope. The same handler
// type serves both the user and the visitor routes.
type Handler struct {
	svc   *Service
	scope Scope
}

// NewHandler binds svc to scope.
func NewHandler(svc *Service, scope Scope) *Handler {
	return &Handler{svc: svc, scope: scope}
}

type saveDayRequest struct {
	Month *int     `json:"month"`
	Year  *int     `json:"year"`
	Day   *int     `json:"day"`
	Hours *float64 `json:"hours"`
}

type dayResponse struct {
	Day   int     `json:"day"`
	Hours float64 `json:"hours"`
}

type studyHoursResponse struct {
	Month int     `json:"month"`
	Year  int     `json:"year"`
	Day   int     `json:"day"`
	Hours float64 `json:"hours"`
}

type saveTopicRequest struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Watched bool   `json:"watched"`
	Revised bool   `json:"revised"`
	Tested  bool   `json:"tested"`
}

type topicResponse struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Watched bool   `json:"watched"`
	Revised bool   `json:"revised"`
	Tested  bool   `json:"tested"`
}

// SaveDay upserts the hours for one day.
func (h *Handler) SaveDay(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	var req saveDayRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	if req.Month == nil || req.Year == nil || req.Day == nil || req.Hours == nil {
		return apperr.Validation("body", "Month, year, day, and hours required")
	}
	entry, err := h.svc.SaveDay(c.UserContext(), actor, DayInput{Year: *req.Year, Month: *req.Month, Day: *req.Day, Hours: *req.Hours})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Study hours saved successfully",
		"data":    studyHoursResponse{Month: entry.Month, Year: entry.Year, Day: entry.Day, Hours: entry.Hours},
	})
}

// Month lists one month as [{day, hours}].
func (h *Handler) Month(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	month, err := c.ParamsInt("month")
	if err != nil {
		return apperr.Validation("month", "Month must be a number")
	}
	year, err := c.ParamsInt("year")
	if err != nil {
		return apperr.Validation("year", "Year must be a number")
	}
	entries, err := h.svc.Month(c.UserContext(), actor, year, month)
	if err != nil {
		return err
	}
	out := make([]dayResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dayResponse{Day: e.Day, Hours: e.Hours})
	}
	return c.Status(http.StatusOK).JSON(out)
}

// StudyHours lists every entry as [{month, year, day, hours}].
func (h *Handler) StudyHours(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.StudyHours(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(hoursResponse(entries))
}

// SaveTopic upserts the three flags of a topic.
func (h *Handler) SaveTopic(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	var req saveTopicRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	_, err = h.svc.SaveTopic(c.UserContext(), actor, TopicInput{
		Subject: req.Subject,
		Topic:   req.Topic,
		Flags:   Flags{Watched: req.Watched, Revised: req.Revised, Tested: req.Tested},
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "Progress saved successfully"})
}

// Curriculum lists topics as a flat array.
func (h *Handler) Curriculum(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.Curriculum(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(topicsResponse(entries))
}

// Subject lists the topics of one subject with counts.
func (h *Handler) Subject(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	name, err := url.PathUnescape(c.Params("subject"))
	if err != nil {
		return apperr.Validation("subject", "Invalid subject")
	}
	sp, err := h.svc.Subject(c.UserContext(), actor, name)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"subject":      sp.Subject,
		"topics":       topicsResponse(sp.Topics),
		"totalTopics":  len(sp.Topics),
		"watchedCount": sp.Watched,
		"revisedCount": sp.Revised,
		"testedCount":  sp.Tested,
	})
}

// DeleteStudyHours removes every study-hours entry of the actor.
func (h *Handler) DeleteStudyHours(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	n, err := h.svc.DeleteStudyHours(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":      fmt.Sprintf("Deleted %d study hours records", n),
		"deletedCount": n,
	})
}

// Grouped lists topics as {subject: {topic: flags}}.
func (h *Handler) Grouped(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	grouped, err := h.svc.Grouped(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(grouped)
}

// Export returns every row owned by the actor with totals.
func (h *Handler) Export(c *fiber.Ctx) error {
	actor, err := h.scope.Resolve(c)
	if err != nil {
		return err
	}
	export, err := h.svc.Export(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"visitorId":  actor.ID,
		"studyHours": hoursResponse(export.StudyHours),
		"curriculum": topicsResponse(export.Curriculum),
		"totals":     export.Totals,
	})
}

func hoursResponse(entries []StudyHours) []studyHoursResponse {
	out := make([]studyHoursResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, studyHoursResponse{Month: e.Month, Year: e.Year, Day: e.Day, Hours: e.Hours})
	}
	return out
}

func topicsResponse(entries []Curriculum) []topicResponse {
	out := make([]topicResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, topicResponse{Subject: e.Subject, Topic: e.Topic, Watched: e.Watched, Revised: e.Revised, Tested: e.Tested})
	}
	return out
}
