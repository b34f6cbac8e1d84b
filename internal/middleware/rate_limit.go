package middleware

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
)

// Rule is a fixed-window limit applied per client IP. A ByEmail rule is
// keyed by the body email instead and skips requests without one; it is
// stacked after the IP rule, never used in its place.
type Rule struct {
	Name    string
	Limit   int
	Window  time.Duration
	Message string
	ByEmail bool
	// SkipSuccessful counts only requests that fail.
	SkipSuccessful bool
}

var (
	GeneralLimit = Rule{Name: "general", Limit: 100, Window: 15 * time.Minute, Message: "Too many requests, please try again later"}
	SignupLimit  = Rule{Name: "signup", Limit: 5, Window: time.Hour, Message: "Too many signup attempts, please try again later"}
	LoginLimit   = Rule{Name: "login", Limit: 10, Window: time.Hour, Message: "Too many login attempts, please try again later", SkipSuccessful: true}
	OTPLimit     = Rule{Name: "otp", Limit: 5, Window: time.Hour, Message: "Too many OTP attempts, please try again later"}
	ResendLimit  = Rule{Name: "resend-otp", Limit: 3, Window: time.Hour, Message: "Too many OTP resend attempts, please try again later"}

	LoginCodeLimit   = Rule{Name: "login-otp", Limit: 3, Window: time.Hour, Message: "Too many login code requests, please try again later"}
	LoginVerifyLimit = Rule{Name: "login-verify", Limit: 5, Window: time.Hour, Message: "Too many OTP attempts, please try again later"}
)

// PerEmail returns the companion rule that caps r per target email.
func (r Rule) PerEmail() Rule {
	r.Name += "-email"
	r.ByEmail = true
	return r
}

// RateLimit enforces rule using Redis counters when cache is set and the
// in-process Fiber limiter otherwise. Redis errors fail open.
func RateLimit(cache *redis.Client, rule Rule, logger *slog.Logger) fiber.Handler {
	if rule.Limit <= 0 {
		rule.Limit = 100
	}
	if rule.Window <= 0 {
		rule.Window = time.Minute
	}
	limited := func(*fiber.Ctx) error {
		return apperr.New(apperr.KindRateLimited, rule.Message)
	}

	if cache == nil {
		return limiter.New(limiter.Config{
			Max:                    rule.Limit,
			Expiration:             rule.Window,
			Next:                   func(c *fiber.Ctx) bool { return rule.key(c) == "" },
			KeyGenerator:           func(c *fiber.Ctx) string { return rule.key(c) },
			LimitReached:           limited,
			SkipSuccessfulRequests: rule.SkipSuccessful,
		})
	}

	return func(c *fiber.Ctx) error {
		key := rule.key(c)
		if key == "" {
			return c.Next()
		}
		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit counter unavailable", slog.String("rule", rule.Name), slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, rule.Window)
		}
		if cnt > int64(rule.Limit) {
			return limited(c)
		}

		err = c.Next()
		if rule.SkipSuccessful && err == nil && c.Response().StatusCode() < fiber.StatusBadRequest {
			cache.Decr(ctx, key)
		}
		return err
	}
}

// key returns the bucket for c, or "" when a ByEmail rule has no email.
func (r Rule) key(c *fiber.Ctx) string {
	if !r.ByEmail {
		return fmt.Sprintf("rl:%s:%s", r.Name, c.IP())
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" {
		return ""
	}
	return fmt.Sprintf("rl:%s:%s", r.Name, email)
}
