package buildtrack

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// respond renders the {success, message, data} envelope every endpoint uses.
func respond(c *fiber.Ctx, status int, message string, data fiber.Map) error {
	body := fiber.Map{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range data {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// respondError maps a domain error to an HTTP status and renders the failure
// envelope. Internal causes are logged, never leaked to the client.
func respondError(c *fiber.Ctx, logger Logger, err error) error {
	if logger == nil {
		logger = defLogger{}
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "validation failed",
			"errors":  verrs,
		})
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = wrapInternal(err, "an unexpected server error occurred")
	}

	status := httpStatus(richErr)
	message := richErr.Message
	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed: %s (category=%s text_code=%s)",
			richErr.Error(), richErr.Category, richErr.TextCode)
		if richErr.TextCode != TextCodeNotificationFailure {
			message = "internal server error"
		}
	}

	body := fiber.Map{
		"success": false,
		"message": message,
	}
	if richErr.TextCode != "" {
		body["error"] = fiber.Map{"text_code": richErr.TextCode}
	}

	return c.Status(status).JSON(body)
}

func httpStatus(err *errors.Error) int {
	if err.TextCode == TextCodeAccountLocked {
		return fiber.StatusLocked
	}

	if err.Code >= fiber.StatusBadRequest {
		return int(err.Code)
	}

	switch err.Category {
	case errors.CategoryValidation, errors.CategoryBadInput, errors.CategoryConflict:
		return fiber.StatusBadRequest
	case errors.CategoryAuth:
		return fiber.StatusUnauthorized
	case errors.CategoryAuthz:
		return fiber.StatusForbidden
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

type validatable interface {
	Validate() error
}

// parseAndValidate binds the JSON body and runs the payload's ozzo rules.
func parseAndValidate(c *fiber.Ctx, payload validatable) error {
	if err := c.BodyParser(payload); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid request body").
			WithCode(errors.CodeBadRequest)
	}
	return payload.Validate()
}
