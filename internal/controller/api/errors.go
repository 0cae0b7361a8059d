package api

import (
	"errors"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorBody is the envelope of every failed response.
type ErrorBody struct {
	Code    apperr.Code   `json:"code"`
	Reason  apperr.Reason `json:"reason,omitempty"`
	Message string        `json:"message"`
}

const codeInternal apperr.Code = "INTERNAL"

func statusOf(e *apperr.Error) int {
	switch e.Code {
	case apperr.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case apperr.CodeForbidden:
		return fiber.StatusForbidden
	case apperr.CodeNotFound:
		return fiber.StatusNotFound
	case apperr.CodeInvalidConfiguration:
		return fiber.StatusBadRequest
	case apperr.CodeConflict:
		return fiber.StatusConflict
	case apperr.CodeUpstreamFailure:
		if e.Reason == apperr.ReasonReconciliation {
			return fiber.StatusInternalServerError
		}
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// errorHandler renders apperr values and fiber errors into ErrorBody. Other
// errors are logged and reported without their text.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e, ok := apperr.As(err); ok {
			return c.Status(statusOf(e)).JSON(ErrorBody{Code: e.Code, Reason: e.Reason, Message: e.Message})
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorBody{Code: codeForStatus(fe.Code), Message: fe.Message})
		}

		logger.Error("Unhandled request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorBody{Code: codeInternal, Message: "internal error"})
	}
}

func codeForStatus(status int) apperr.Code {
	switch status {
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusForbidden:
		return apperr.CodeForbidden
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return apperr.CodeNotFound
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity:
		return apperr.CodeInvalidConfiguration
	}
	return codeInternal
}

// invalidInput turns a validator failure into an InvalidConfiguration error
// naming the first offending field.
func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return apperr.Invalid("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return apperr.Invalid("%s must satisfy %s", fe.Field(), fe.Tag())
	}
	return apperr.Invalid("invalid request body")
}
