package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gate-tracker/gate_tracker/internal/auth"
	"github.com/gate-tracker/gate_tracker/internal/middleware"
)

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, jwtmw fiber.Handler, limit func(middleware.Rule) fiber.Handler) {
	group := r.Group("/auth")
	// Each endpoint counts per client IP first, then per target email.
	limits := func(rule middleware.Rule) []fiber.Handler {
		return []fiber.Handler{limit(rule), limit(rule.PerEmail())}
	}
	group.Post("/register", append(limits(middleware.SignupLimit), h.Register)...)
	group.Post("/verify-otp", append(limits(middleware.OTPLimit), h.VerifyOTP)...)
	group.Post("/resend-otp", append(limits(middleware.ResendLimit), h.ResendOTP)...)
	group.Post("/login", append(limits(middleware.LoginLimit), h.Login)...)
	group.Post("/login-otp", append(limits(middleware.LoginCodeLimit), h.LoginOTP)...)
	group.Post("/login-verify", append(limits(middleware.LoginVerifyLimit), h.LoginVerify)...)
	group.Get("/me", jwtmw, h.Me)
}
