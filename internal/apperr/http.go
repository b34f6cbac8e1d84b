package apperr

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// RequestIDKey is the Locals key holding the request id.
const RequestIDKey = "X-Request-ID"

// ErrorHandler renders errors as {"message", "code"}. Internal causes are
// logged with the request id and never sent to the client.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := render(err)
		if status >= fiber.StatusInternalServerError && logger != nil {
			reqID, _ := c.Locals(RequestIDKey).(string)
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", reqID),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(body)
	}
}

func render(err error) (int, fiber.Map) {
	var appErr *Error
	if errors.As(err, &appErr) {
		body := fiber.Map{"message": PublicMessage(appErr), "code": string(appErr.Kind)}
		if appErr.Field != "" && appErr.Kind == KindValidation {
			body["field"] = appErr.Field
		}
		return Status(appErr.Kind), body
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiber.Map{"message": fiberErr.Message, "code": codeForStatus(fiberErr.Code)}
	}

	return fiber.StatusInternalServerError, fiber.Map{"message": PublicMessage(err), "code": string(KindInternal)}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return string(KindValidation)
	case fiber.StatusUnauthorized:
		return string(KindUnauthorized)
	case fiber.StatusForbidden:
		return string(KindForbidden)
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return string(KindNotFound)
	case fiber.StatusConflict:
		return string(KindConflict)
	case fiber.StatusTooManyRequests:
		return string(KindRateLimited)
	default:
		if status >= fiber.StatusInternalServerError {
			return string(KindInternal)
		}
		return "ERROR"
	}
}
