package api

import (
	"context"
	"time"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const identityKey = "identity"

// authenticate parses the bearer token and refreshes the caller's flags from
// storage, so a subscription activated after login is honoured.
func (s *Server) authenticate(c *fiber.Ctx) error {
	id, err := s.tokens.ParseSession(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return apperr.Unauthorized("missing or invalid token")
	}

	fresh, err := s.services.Auth.Refresh(c.UserContext(), id)
	if err != nil {
		return err
	}
	c.Locals(identityKey, fresh)
	return c.Next()
}

func identity(c *fiber.Ctx) auth.Identity {
	id, _ := c.Locals(identityKey).(auth.Identity)
	return id
}

func requireAdmin(c *fiber.Ctx) error {
	if identity(c).Role != auth.RoleAdmin {
		return apperr.Forbidden("admin access required")
	}
	return c.Next()
}

// requireSubscribedAdmin guards the seat, shift and student surfaces.
func requireSubscribedAdmin(c *fiber.Ctx) error {
	id := identity(c)
	switch {
	case id.Role != auth.RoleAdmin:
		return apperr.Forbidden("admin access required")
	case !id.IsVerified:
		return apperr.Forbidden("verify your email first")
	case !id.IsSubscribed:
		return apperr.Forbidden("an active subscription is required")
	}
	return c.Next()
}

func requireMaster(c *fiber.Ctx) error {
	id := identity(c)
	if id.Role != auth.RoleAdmin || !id.IsMaster {
		return apperr.Forbidden("master admin access required")
	}
	return c.Next()
}

func requirePaidStudent(c *fiber.Ctx) error {
	id := identity(c)
	switch {
	case id.Role != auth.RoleStudent:
		return apperr.Forbidden("student access required")
	case !id.HasPaid:
		return apperr.Forbidden("payment pending")
	}
	return c.Next()
}

// requestLogger логирует каждый запрос и проставляет X-Request-ID
func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, id)

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if e, ok := apperr.As(err); ok {
				status = statusOf(e)
			} else if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		logger.Info("Request",
			zap.String("request_id", id),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// requestTimeout gives handlers a context with a deadline; the default user
// context of a fiber request never expires.
func requestTimeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
