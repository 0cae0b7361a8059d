package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/billing"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/notify"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MinPlanAmount = 100
	PlanCurrency  = "INR"
	PendingTTL    = 24 * time.Hour
)

type PlanInput struct {
	Name          string
	Description   string
	Amount        int64
	BillingCycle  model.BillingCycle
	IntervalCount int
}

type SubscriptionInput struct {
	PlanID uuid.UUID
	Email  string
	Phone  string
}

// Checkout is what the client needs to open the provider's checkout.
type Checkout struct {
	SubscriptionID string `json:"subscription_id"`
	KeyID          string `json:"razorpay_key_id"`
	ShortURL       string `json:"short_url,omitempty"`
}

type SubscriptionStatus struct {
	IsSubscribed bool                         `json:"is_subscribed"`
	Active       []*model.Subscription        `json:"active_subscriptions"`
	Pending      []*model.PendingSubscription `json:"pending_subscriptions"`
}

type CleanupReport struct {
	PendingDeleted int64
}

type BillingService struct {
	store   storage.Store
	gateway billing.Gateway
	alerts  Alerter
	fail    failures
	log     *zap.Logger
}

func NewBillingService(store storage.Store, gateway billing.Gateway, alerts Alerter, logger *zap.Logger) *BillingService {
	return &BillingService{
		store:   store,
		gateway: gateway,
		alerts:  alerts,
		fail:    failures{alerts: alerts, logger: logger},
		log:     logger,
	}
}

func (s *BillingService) CreatePlan(ctx context.Context, in PlanInput) (*model.SubscriptionPlan, error) {
	plan := &model.SubscriptionPlan{ID: uuid.New()}
	if err := applyPlanInput(plan, in); err != nil {
		return nil, err
	}

	providerID, err := s.gateway.CreatePlan(ctx, planSpec(plan))
	if err != nil {
		s.log.Error("Failed to create provider plan", zap.String("name", plan.Name), zap.Error(err))
		return nil, apperr.Upstream(err, true, "create provider plan")
	}
	plan.ProviderPlanID = providerID

	if err := s.store.Plans().Create(ctx, plan); err != nil {
		// Provider plans cannot be deleted; the orphan is harmless but worth a log line.
		return nil, s.fail.translate(ctx, err, "create plan", zap.String("provider_plan_id", providerID))
	}

	s.log.Info("Plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("provider_plan_id", providerID),
		zap.Int64("amount", plan.Amount),
	)
	return plan, nil
}

// UpdatePlan creates a new provider plan for the new terms and points the
// stored plan at it. Existing subscriptions keep the old provider plan.
func (s *BillingService) UpdatePlan(ctx context.Context, id uuid.UUID, in PlanInput) (*model.SubscriptionPlan, error) {
	plan, err := s.store.Plans().GetByID(ctx, id)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "update plan", zap.String("plan_id", id.String()))
	}
	if plan == nil {
		return nil, apperr.NotFound("plan not found")
	}
	if err := applyPlanInput(plan, in); err != nil {
		return nil, err
	}

	providerID, err := s.gateway.CreatePlan(ctx, planSpec(plan))
	if err != nil {
		s.log.Error("Failed to create provider plan", zap.String("plan_id", id.String()), zap.Error(err))
		return nil, apperr.Upstream(err, true, "create provider plan")
	}
	plan.ProviderPlanID = providerID

	if err := s.store.Plans().Update(ctx, plan); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("plan not found")
		}
		return nil, s.fail.translate(ctx, err, "update plan", zap.String("plan_id", id.String()))
	}

	s.log.Info("Plan updated",
		zap.String("plan_id", id.String()),
		zap.String("provider_plan_id", providerID),
	)
	return plan, nil
}

func (s *BillingService) DeletePlan(ctx context.Context, id uuid.UUID) error {
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		plan, err := r.Plans().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if plan == nil {
			return apperr.NotFound("plan not found")
		}
		err = r.Plans().Delete(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Conflict(apperr.ReasonNone, "plan has subscriptions")
		}
		return err
	})
	if err != nil {
		return s.fail.translate(ctx, err, "delete plan", zap.String("plan_id", id.String()))
	}

	s.log.Info("Plan deleted", zap.String("plan_id", id.String()))
	return nil
}

func (s *BillingService) ListPlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	plans, err := s.store.Plans().List(ctx)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "list plans")
	}
	if plans == nil {
		plans = []*model.SubscriptionPlan{}
	}
	return plans, nil
}

// CreateSubscription creates the provider subscription and records it as
// pending. When recording fails the provider subscription is cancelled again.
func (s *BillingService) CreateSubscription(ctx context.Context, adminID uuid.UUID, in SubscriptionInput) (*Checkout, error) {
	plan, err := s.store.Plans().GetByID(ctx, in.PlanID)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "create subscription", zap.String("plan_id", in.PlanID.String()))
	}
	if plan == nil {
		return nil, apperr.NotFound("plan not found")
	}
	admin, err := s.store.Admins().GetByID(ctx, adminID)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "create subscription", zap.String("admin_id", adminID.String()))
	}
	if admin == nil {
		return nil, apperr.NotFound("admin not found")
	}

	email := normalizeEmail(in.Email)
	if email == "" {
		email = admin.Email
	}
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		phone = admin.MobileNo
	}

	sub, err := s.gateway.CreateSubscription(ctx, billing.SubscriptionSpec{
		ProviderPlanID: plan.ProviderPlanID,
		TotalCount:     plan.BillingCycle.TotalCount(),
		CustomerEmail:  email,
		CustomerPhone:  phone,
		AdminID:        adminID.String(),
	})
	if err != nil {
		s.log.Error("Failed to create provider subscription",
			zap.String("admin_id", adminID.String()),
			zap.String("plan_id", plan.ID.String()),
			zap.Error(err),
		)
		return nil, apperr.Upstream(err, true, "create provider subscription")
	}

	pending := &model.PendingSubscription{
		ID:                     uuid.New(),
		AdminID:                adminID,
		PlanID:                 plan.ID,
		ProviderSubscriptionID: sub.ID,
		Status:                 model.SubscriptionStatusCreated,
		CustomerEmail:          email,
		CustomerPhone:          phone,
	}
	if err := s.store.Subscriptions().CreatePending(ctx, pending); err != nil {
		return nil, s.compensate(ctx, sub.ID, adminID, err)
	}

	s.log.Info("Subscription created",
		zap.String("admin_id", adminID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.String("subscription_id", sub.ID),
	)
	return &Checkout{SubscriptionID: sub.ID, KeyID: s.gateway.KeyID(), ShortURL: sub.ShortURL}, nil
}

// compensate cancels a provider subscription whose pending row could not be
// written.
func (s *BillingService) compensate(ctx context.Context, subscriptionID string, adminID uuid.UUID, cause error) error {
	fields := []zap.Field{
		zap.String("admin_id", adminID.String()),
		zap.String("subscription_id", subscriptionID),
	}

	cancelErr := s.gateway.CancelSubscription(context.WithoutCancel(ctx), subscriptionID)
	if cancelErr != nil {
		err := fmt.Errorf("record pending subscription: %w (cancel: %v)", cause, cancelErr)
		s.fail.reconcile(ctx, err, "create subscription", fields...)
		return apperr.Upstream(err, false, "create subscription failed and the provider subscription could not be cancelled")
	}

	s.log.Warn("Provider subscription cancelled after storage failure", append(fields, zap.Error(cause))...)
	return apperr.Upstream(cause, true, "create subscription failed")
}

// HandleWebhook verifies and applies a provider event. Unknown events are
// acknowledged without changes.
func (s *BillingService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhook(body, signature) {
		s.log.Warn("Webhook signature rejected")
		return apperr.Unauthorized("invalid webhook signature")
	}

	ev, err := billing.ParseWebhook(body)
	if err != nil {
		return apperr.Invalid("malformed webhook payload")
	}

	switch ev.Event {
	case billing.EventSubscriptionAuthenticated:
		return s.activate(ctx, ev.SubscriptionID, model.SubscriptionStatusAuthenticated)
	case billing.EventSubscriptionCharged:
		return s.activate(ctx, ev.SubscriptionID, model.SubscriptionStatusActive)
	case billing.EventSubscriptionCancelled:
		return s.deactivate(ctx, ev.SubscriptionID, model.SubscriptionStatusCancelled)
	case billing.EventSubscriptionHalted:
		return s.deactivate(ctx, ev.SubscriptionID, model.SubscriptionStatusHalted)
	}

	s.log.Debug("Webhook event ignored", zap.String("event", ev.Event))
	return nil
}

// ActivateManually marks a subscription active without a provider event.
func (s *BillingService) ActivateManually(ctx context.Context, subscriptionID string) error {
	return s.activate(ctx, subscriptionID, model.SubscriptionStatusActive)
}

// activate moves a pending subscription to the live table and flags the
// admin as subscribed. Repeated calls only refresh the status. A cancelled or
// halted subscription stays ended: late events for it are acknowledged and
// dropped.
func (s *BillingService) activate(ctx context.Context, subscriptionID string, status model.SubscriptionStatus) error {
	var (
		adminID uuid.UUID
		planID  uuid.UUID
		plan    *model.SubscriptionPlan
		ended   model.SubscriptionStatus
	)
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		existing, err := r.Subscriptions().GetByProviderID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		pending, err := r.Subscriptions().GetPending(ctx, subscriptionID)
		if err != nil {
			return err
		}

		switch {
		case existing != nil && existing.Status.IsTerminal():
			adminID, ended = existing.AdminID, existing.Status
			return nil
		case existing != nil:
			adminID, planID = existing.AdminID, existing.PlanID
			if existing.Status != status {
				if err := r.Subscriptions().UpdateStatus(ctx, subscriptionID, status); err != nil {
					return err
				}
			}
		case pending != nil:
			adminID, planID = pending.AdminID, pending.PlanID
			err := r.Subscriptions().Create(ctx, &model.Subscription{
				ID:                     uuid.New(),
				AdminID:                pending.AdminID,
				PlanID:                 pending.PlanID,
				ProviderSubscriptionID: pending.ProviderSubscriptionID,
				Status:                 status,
				CustomerEmail:          pending.CustomerEmail,
				CustomerPhone:          pending.CustomerPhone,
			})
			if err != nil {
				return err
			}
		default:
			return apperr.NotFound("subscription %s not found", subscriptionID)
		}

		if pending != nil {
			if err := r.Subscriptions().DeletePending(ctx, pending.ID); err != nil {
				return err
			}
		}
		if plan, err = r.Plans().GetByID(ctx, planID); err != nil {
			return err
		}
		return r.Admins().SetSubscribed(ctx, adminID, true)
	})
	if err != nil {
		return s.fail.translate(ctx, err, "activate subscription", zap.String("subscription_id", subscriptionID))
	}
	if ended != "" {
		s.log.Warn("Ignoring activation of ended subscription",
			zap.String("admin_id", adminID.String()),
			zap.String("subscription_id", subscriptionID),
			zap.String("status", string(ended)),
			zap.String("requested", string(status)),
		)
		return nil
	}

	s.log.Info("Subscription activated",
		zap.String("admin_id", adminID.String()),
		zap.String("subscription_id", subscriptionID),
		zap.String("status", string(status)),
	)
	s.notify(ctx, fmt.Sprintf("Subscription %s is %s (admin %s, %s)", subscriptionID, status, adminID, planLabel(plan)))
	return nil
}

func planLabel(plan *model.SubscriptionPlan) string {
	if plan == nil {
		return "plan removed"
	}
	return fmt.Sprintf("plan %q %s/%s", plan.Name, notify.FormatAmount(plan.Amount, plan.Currency), plan.BillingCycle)
}

// deactivate records a cancelled or halted subscription and clears the admin
// flag unless another live subscription remains.
func (s *BillingService) deactivate(ctx context.Context, subscriptionID string, status model.SubscriptionStatus) error {
	var (
		adminID    uuid.UUID
		subscribed bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		existing, err := r.Subscriptions().GetByProviderID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			pending, err := r.Subscriptions().GetPending(ctx, subscriptionID)
			if err != nil {
				return err
			}
			if pending == nil {
				return apperr.NotFound("subscription %s not found", subscriptionID)
			}
			adminID = pending.AdminID
			return r.Subscriptions().DeletePending(ctx, pending.ID)
		}

		adminID = existing.AdminID
		if err := r.Subscriptions().UpdateStatus(ctx, subscriptionID, status); err != nil {
			return err
		}
		live, err := r.Subscriptions().ListLiveByAdmin(ctx, adminID)
		if err != nil {
			return err
		}
		subscribed = len(live) > 0
		return r.Admins().SetSubscribed(ctx, adminID, subscribed)
	})
	if err != nil {
		return s.fail.translate(ctx, err, "deactivate subscription", zap.String("subscription_id", subscriptionID))
	}

	s.log.Info("Subscription deactivated",
		zap.String("admin_id", adminID.String()),
		zap.String("subscription_id", subscriptionID),
		zap.String("status", string(status)),
		zap.Bool("still_subscribed", subscribed),
	)
	s.notify(ctx, fmt.Sprintf("Subscription %s is %s (admin %s)", subscriptionID, status, adminID))
	return nil
}

func (s *BillingService) Status(ctx context.Context, adminID uuid.UUID) (*SubscriptionStatus, error) {
	admin, err := s.store.Admins().GetByID(ctx, adminID)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "subscription status", zap.String("admin_id", adminID.String()))
	}
	if admin == nil {
		return nil, apperr.NotFound("admin not found")
	}

	out := &SubscriptionStatus{IsSubscribed: admin.IsSubscribed}
	if out.Active, err = s.store.Subscriptions().ListLiveByAdmin(ctx, adminID); err != nil {
		return nil, s.fail.translate(ctx, err, "subscription status", zap.String("admin_id", adminID.String()))
	}
	if out.Pending, err = s.store.Subscriptions().ListPendingByAdmin(ctx, adminID); err != nil {
		return nil, s.fail.translate(ctx, err, "subscription status", zap.String("admin_id", adminID.String()))
	}
	if out.Active == nil {
		out.Active = []*model.Subscription{}
	}
	if out.Pending == nil {
		out.Pending = []*model.PendingSubscription{}
	}
	return out, nil
}

// Cleanup drops abandoned pending rows. Live rows are only written by
// activation, so there is nothing in the created state to expire there.
// Safe to run repeatedly.
func (s *BillingService) Cleanup(ctx context.Context, now time.Time) (CleanupReport, error) {
	var report CleanupReport
	var err error

	if report.PendingDeleted, err = s.store.Subscriptions().DeletePendingBefore(ctx, now.Add(-PendingTTL)); err != nil {
		return report, s.fail.translate(ctx, err, "cleanup pending subscriptions")
	}

	if report.PendingDeleted > 0 {
		s.log.Info("Subscription cleanup done", zap.Int64("pending_deleted", report.PendingDeleted))
	}
	return report, nil
}

func (s *BillingService) notify(ctx context.Context, text string) {
	if s.alerts != nil {
		s.alerts.Alert(ctx, text)
	}
}

func applyPlanInput(plan *model.SubscriptionPlan, in PlanInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Invalid("plan name is required")
	}
	if in.Amount < MinPlanAmount {
		return apperr.Invalid("plan amount must be at least %d", MinPlanAmount)
	}
	if !in.BillingCycle.Valid() {
		return apperr.Invalid("unknown billing cycle %q", in.BillingCycle)
	}
	interval := in.IntervalCount
	if interval == 0 {
		interval = 1
	}
	if interval < 1 {
		return apperr.Invalid("interval count must be positive")
	}

	plan.Name = name
	plan.Description = strings.TrimSpace(in.Description)
	plan.Amount = in.Amount
	plan.Currency = PlanCurrency
	plan.BillingCycle = in.BillingCycle
	plan.IntervalCount = interval
	return nil
}

func planSpec(plan *model.SubscriptionPlan) billing.PlanSpec {
	return billing.PlanSpec{
		Name:        plan.Name,
		Description: plan.Description,
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		Period:      plan.BillingCycle.Period(),
		Interval:    plan.IntervalCount,
	}
}
