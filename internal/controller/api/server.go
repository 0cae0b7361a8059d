// Package api exposes the services over HTTP with Fiber.
package api

import (
	"context"
	"time"

	"github.com/Freeeeeet/studyroom/internal/auth"
	"github.com/Freeeeeet/studyroom/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// Services groups the handlers' collaborators.
type Services struct {
	Auth     *service.AuthService
	Shifts   *service.ShiftService
	Seats    *service.SeatService
	Students *service.StudentService
	Billing  *service.BillingService
}

type Options struct {
	AllowedOrigins string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// RequestTimeout bounds the storage and provider calls of one request.
	RequestTimeout time.Duration
}

type Server struct {
	app      *fiber.App
	services Services
	tokens   *auth.Issuer
	validate *validator.Validate
	logger   *zap.Logger
}

func NewServer(opts Options, services Services, tokens *auth.Issuer, logger *zap.Logger) *Server {
	if opts.AllowedOrigins == "" {
		opts.AllowedOrigins = "*"
	}

	s := &Server{
		services: services,
		tokens:   tokens,
		validate: newValidator(),
		logger:   logger,
	}
	s.app = fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(logger),
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowedOrigins,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	s.app.Use(requestLogger(logger))
	if opts.RequestTimeout > 0 {
		s.app.Use(requestTimeout(opts.RequestTimeout))
	}

	s.registerRoutes()
	return s
}

// App is exposed for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api")

	api.Group("/auth").
		Post("/signup", s.signup).
		Post("/verify-otp", s.verifyOTP).
		Post("/forgot-password", s.forgotPassword).
		Post("/reset-password", s.resetPassword).
		Post("/login", s.login)

	api.Post("/webhooks/razorpay", s.razorpayWebhook)

	api.Get("/student/me", s.authenticate, requirePaidStudent, s.studentMe)

	admin := api.Group("/admin", s.authenticate, requireAdmin)
	admin.Get("/profile", s.getProfile)
	admin.Put("/profile", s.updateProfile)
	admin.Get("/plans", s.listPlans)
	admin.Post("/subscriptions", s.createSubscription)
	admin.Get("/subscriptions/status", s.subscriptionStatus)

	// Только мастер-админ
	admin.Post("/plans", requireMaster, s.createPlan)
	admin.Put("/plans/:id", requireMaster, s.updatePlan)
	admin.Delete("/plans/:id", requireMaster, s.deletePlan)
	admin.Post("/subscriptions/:subscriptionId/activate", requireMaster, s.activateSubscription)

	// Verified and subscribed admins only. Group middleware would also run
	// for the routes above, so the guard is attached per route.
	paid := requireSubscribedAdmin

	admin.Get("/shifts", paid, s.getShifts)
	admin.Post("/shifts", paid, s.configureShifts)
	admin.Put("/shifts", paid, s.updateShifts)
	admin.Delete("/shifts", paid, s.deleteShifts)
	admin.Delete("/shifts/:number", paid, s.deleteShift)

	admin.Get("/seats", paid, s.listSeats)
	admin.Get("/seats/available", paid, s.availableSeats)
	admin.Post("/seats", paid, s.configureSeats)
	admin.Post("/seats/:id/allocate", paid, s.allocateSeat)
	admin.Post("/seats/:id/release", paid, s.releaseSeat)
	admin.Delete("/seats/:id", paid, s.deleteSeat)

	admin.Get("/students", paid, s.listStudents)
	admin.Post("/students", paid, s.addStudent)
	admin.Get("/students/:id", paid, s.getStudent)
	admin.Put("/students/:id", paid, s.updateEnrollment)
	admin.Delete("/students/:id", paid, s.removeStudent)
	admin.Patch("/students/:id/payment", paid, s.setPayment)
	admin.Delete("/students/:id/seat", paid, s.deallocateSeat)
}
