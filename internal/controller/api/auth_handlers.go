package api

import (
	"github.com/Freeeeeet/studyroom/internal/auth"
	"github.com/Freeeeeet/studyroom/internal/service"
	"github.com/gofiber/fiber/v2"
)

func (s *Server) signup(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.services.Auth.SignupAdmin(c.UserContext(), req.Email, req.Password); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "verification code sent"})
}

func (s *Server) verifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	v, err := s.services.Auth.VerifyOTP(c.UserContext(), req.Email, req.OTP)
	if err != nil {
		return err
	}

	if v.Purpose == auth.PurposePasswordReset {
		return c.JSON(fiber.Map{"reset_token": v.Token})
	}
	return c.JSON(fiber.Map{"token": v.Token})
}

func (s *Server) forgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.services.Auth.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "verification code sent"})
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.services.Auth.ResetPassword(c.UserContext(), req.ResetToken, req.Password); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "password updated"})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	sess, err := s.services.Auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"token":         sess.Token,
		"role":          sess.Identity.Role,
		"is_subscribed": sess.Identity.IsSubscribed,
		"is_verified":   sess.Identity.IsVerified,
	})
}

func (s *Server) getProfile(c *fiber.Ctx) error {
	admin, err := s.services.Auth.Profile(c.UserContext(), identity(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(admin)
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	var req profileRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	admin, err := s.services.Auth.UpdateProfile(c.UserContext(), identity(c).UserID, service.ProfileInput{
		Name:         req.Name,
		BusinessName: req.BusinessName,
		MobileNo:     req.MobileNo,
	})
	if err != nil {
		return err
	}
	return c.JSON(admin)
}

func (s *Server) studentMe(c *fiber.Ctx) error {
	student, err := s.services.Students.Profile(c.UserContext(), identity(c))
	if err != nil {
		return err
	}
	return c.JSON(student)
}
