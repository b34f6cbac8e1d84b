package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
)

// LocalsUserID and LocalsEmail hold the token subject set by the JWT middleware.
const (
	LocalsUserID = "user_id"
	LocalsEmail  = "email"
)

// Handler exposes the auth endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resendRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	session, err := h.svc.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(session)
}

// VerifyOTP completes an OTP registration.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	session, err := h.svc.VerifyOTP(c.UserContext(), req.Email, req.OTP)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(session)
}

// ResendOTP issues a fresh code.
func (h *Handler) ResendOTP(c *fiber.Ctx) error {
	var req resendRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	message, err := h.svc.ResendOTP(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": message})
}

// Login validates credentials and returns a session token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	session, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(session)
}

// LoginOTP emails a passwordless login code.
func (h *Handler) LoginOTP(c *fiber.Ctx) error {
	var req resendRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	message, err := h.svc.RequestLoginOTP(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": message})
}

// LoginVerify exchanges a login code for a session token.
func (h *Handler) LoginVerify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	session, err := h.svc.VerifyLoginOTP(c.UserContext(), req.Email, req.OTP)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(session)
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals(LocalsUserID).(string)
	if userID == "" {
		return apperr.New(apperr.KindUnauthorized, "Access token required")
	}
	profile, err := h.svc.Me(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(profile)
}
