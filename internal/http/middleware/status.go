package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"outboxapi/internal/apperr"
)

// ErrorLocalKey holds the error a handler answered with, for the access log.
const ErrorLocalKey = "handler_error"

// statusOf returns the status the client will see. An error returned up the
// chain is rendered later by the app's ErrorHandler, so it wins over the
// status currently set on the response.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if ae, ok := apperr.As(err); ok {
		return apperr.StatusOf(ae.Kind)
	}
	return fiber.StatusInternalServerError
}
