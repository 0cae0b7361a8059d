package api

import (
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/service"
	"github.com/gofiber/fiber/v2"
)

const signatureHeader = "X-Razorpay-Signature"

func planInput(req planRequest) service.PlanInput {
	return service.PlanInput{
		Name:          req.Name,
		Description:   req.Description,
		Amount:        req.Amount,
		BillingCycle:  model.BillingCycle(req.BillingCycle),
		IntervalCount: req.IntervalCount,
	}
}

func (s *Server) listPlans(c *fiber.Ctx) error {
	plans, err := s.services.Billing.ListPlans(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(plans)
}

func (s *Server) createPlan(c *fiber.Ctx) error {
	var req planRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	plan, err := s.services.Billing.CreatePlan(c.UserContext(), planInput(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

func (s *Server) updatePlan(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req planRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	plan, err := s.services.Billing.UpdatePlan(c.UserContext(), id, planInput(req))
	if err != nil {
		return err
	}
	return c.JSON(plan)
}

func (s *Server) deletePlan(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.services.Billing.DeletePlan(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) createSubscription(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	checkout, err := s.services.Billing.CreateSubscription(c.UserContext(), identity(c).UserID, service.SubscriptionInput{
		PlanID: req.PlanID,
		Email:  req.Email,
		Phone:  req.Phone,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(checkout)
}

func (s *Server) subscriptionStatus(c *fiber.Ctx) error {
	status, err := s.services.Billing.Status(c.UserContext(), identity(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(status)
}

func (s *Server) activateSubscription(c *fiber.Ctx) error {
	if err := s.services.Billing.ActivateManually(c.UserContext(), c.Params("subscriptionId")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "subscription activated"})
}

// razorpayWebhook needs the raw body: the signature covers its exact bytes.
func (s *Server) razorpayWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	if err := s.services.Billing.HandleWebhook(c.UserContext(), body, c.Get(signatureHeader)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
