package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/billing"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu        sync.Mutex
	plans     []billing.PlanSpec
	subs      []billing.SubscriptionSpec
	cancelled []string
	seq       int

	createErr error
	cancelErr error
}

func (g *fakeGateway) CreatePlan(_ context.Context, spec billing.PlanSpec) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.plans = append(g.plans, spec)
	g.seq++
	return fmt.Sprintf("plan_%d", g.seq), nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, spec billing.SubscriptionSpec) (*billing.ProviderSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.subs = append(g.subs, spec)
	g.seq++
	return &billing.ProviderSubscription{ID: fmt.Sprintf("sub_%d", g.seq), Status: "created"}, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, id)
	return nil
}

// VerifyWebhook accepts the literal signature "ok".
func (g *fakeGateway) VerifyWebhook(_ []byte, signature string) bool {
	return signature == "ok"
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

type billingFixture struct {
	store   *memory.Store
	gateway *fakeGateway
	alerts  *recordingAlerter
	svc     *BillingService
	admin   *model.Admin
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	store := memory.New()
	f := &billingFixture{
		store:   store,
		gateway: &fakeGateway{},
		alerts:  &recordingAlerter{},
	}
	f.svc = NewBillingService(store, f.gateway, f.alerts, zap.NewNop())
	f.admin = seedAdmin(t, store)
	require.NoError(t, store.Admins().SetSubscribed(context.Background(), f.admin.ID, false))
	return f
}

func (f *billingFixture) plan(t *testing.T) *model.SubscriptionPlan {
	t.Helper()
	p, err := f.svc.CreatePlan(context.Background(), PlanInput{Name: "Pro", Amount: 49900, BillingCycle: model.BillingCycleMonthly})
	require.NoError(t, err)
	return p
}

func (f *billingFixture) subscribed(t *testing.T) bool {
	t.Helper()
	a, err := f.store.Admins().GetByID(context.Background(), f.admin.ID)
	require.NoError(t, err)
	return a.IsSubscribed
}

func webhook(event, subscriptionID string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"payload":{"subscription":{"entity":{"id":%q,"status":"active"}}}}`, event, subscriptionID))
}

func TestPlanLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)

	p, err := f.svc.CreatePlan(ctx, PlanInput{Name: "Forever", Amount: 99900, BillingCycle: model.BillingCycleLifetime})
	require.NoError(t, err)
	assert.Equal(t, "plan_1", p.ProviderPlanID)
	assert.Equal(t, PlanCurrency, p.Currency)
	assert.Equal(t, "monthly", f.gateway.plans[0].Period)

	updated, err := f.svc.UpdatePlan(ctx, p.ID, PlanInput{Name: "Forever", Amount: 89900, BillingCycle: model.BillingCycleLifetime})
	require.NoError(t, err)
	assert.Equal(t, "plan_2", updated.ProviderPlanID)

	plans, err := f.svc.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, int64(89900), plans[0].Amount)

	require.NoError(t, f.svc.DeletePlan(ctx, p.ID))
	assert.ErrorIs(t, f.svc.DeletePlan(ctx, p.ID), apperr.ErrNotFound)
}

func TestPlanValidation(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)

	for _, in := range []PlanInput{
		{Name: "Cheap", Amount: 99, BillingCycle: model.BillingCycleMonthly},
		{Name: "Weekly", Amount: 500, BillingCycle: "weekly"},
		{Name: " ", Amount: 500, BillingCycle: model.BillingCycleYearly},
	} {
		_, err := f.svc.CreatePlan(ctx, in)
		assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration, "%+v", in)
	}
	assert.Empty(t, f.gateway.plans)
}

func TestPlanWithSubscriptionsCannotBeDeleted(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)
	_, err := f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: p.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeletePlan(ctx, p.ID), apperr.ErrConflict)
}

func TestCreateSubscriptionRecordsPending(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)

	checkout, err := f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: p.ID, Phone: "9000000000"})
	require.NoError(t, err)
	assert.Equal(t, "rzp_test_key", checkout.KeyID)
	assert.Equal(t, f.admin.Email, f.gateway.subs[0].CustomerEmail)
	assert.Equal(t, 12, f.gateway.subs[0].TotalCount)

	status, err := f.svc.Status(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.False(t, status.IsSubscribed)
	require.Len(t, status.Pending, 1)
	assert.Equal(t, checkout.SubscriptionID, status.Pending[0].ProviderSubscriptionID)
	assert.Empty(t, status.Active)

	_, err = f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: uuid.New()})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateSubscriptionProviderFailure(t *testing.T) {
	f := newBillingFixture(t)
	p := f.plan(t)
	f.gateway.createErr = errors.New("gateway timeout")

	_, err := f.svc.CreateSubscription(context.Background(), f.admin.ID, SubscriptionInput{PlanID: p.ID})
	assert.ErrorIs(t, err, apperr.ErrUpstreamFailure)
	assert.False(t, apperr.RequiresReconciliation(err))
}

func TestCreateSubscriptionCompensates(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)
	f.store.FailOn("subscriptions.CreatePending", errors.New("disk full"))

	_, err := f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: p.ID})
	assert.ErrorIs(t, err, apperr.ErrUpstreamFailure)
	assert.False(t, apperr.RequiresReconciliation(err))
	require.Len(t, f.gateway.cancelled, 1)
	assert.Empty(t, f.alerts.Texts())
}

func TestCreateSubscriptionCompensationFailure(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)
	f.store.FailOn("subscriptions.CreatePending", errors.New("disk full"))
	f.gateway.cancelErr = errors.New("gateway down")

	_, err := f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: p.ID})
	assert.True(t, apperr.RequiresReconciliation(err))
	require.Len(t, f.alerts.Texts(), 1)
	assert.Contains(t, f.alerts.Texts()[0], "manual reconciliation")
}

func TestWebhookActivationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)
	checkout, err := f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: p.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionAuthenticated, checkout.SubscriptionID), "ok"))
	assert.True(t, f.subscribed(t))
	require.Len(t, f.alerts.Texts(), 1)
	assert.Contains(t, f.alerts.Texts()[0], `plan "Pro" ₹499/monthly`)

	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCharged, checkout.SubscriptionID), "ok"))
	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCharged, checkout.SubscriptionID), "ok"))

	status, err := f.svc.Status(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.True(t, status.IsSubscribed)
	assert.Empty(t, status.Pending)
	require.Len(t, status.Active, 1)
	assert.Equal(t, model.SubscriptionStatusActive, status.Active[0].Status)
}

func TestWebhookCancellation(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)

	var ids []string
	for i := 0; i < 2; i++ {
		checkout, err := f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: p.ID})
		require.NoError(t, err)
		require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCharged, checkout.SubscriptionID), "ok"))
		ids = append(ids, checkout.SubscriptionID)
	}

	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCancelled, ids[0]), "ok"))
	assert.True(t, f.subscribed(t), "another live subscription remains")

	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionHalted, ids[1]), "ok"))
	assert.False(t, f.subscribed(t))
}

func TestLateChargeDoesNotReviveCancelledSubscription(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)
	checkout, err := f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: p.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCharged, checkout.SubscriptionID), "ok"))
	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCancelled, checkout.SubscriptionID), "ok"))
	require.False(t, f.subscribed(t))
	alerts := len(f.alerts.Texts())

	// Delivered out of order by the provider.
	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCharged, checkout.SubscriptionID), "ok"))
	require.NoError(t, f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionAuthenticated, checkout.SubscriptionID), "ok"))
	require.NoError(t, f.svc.ActivateManually(ctx, checkout.SubscriptionID))

	assert.False(t, f.subscribed(t))
	got, err := f.store.Subscriptions().GetByProviderID(ctx, checkout.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCancelled, got.Status)
	assert.Len(t, f.alerts.Texts(), alerts)
}

func TestWebhookRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)

	err := f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCharged, "sub_x"), "forged")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	err = f.svc.HandleWebhook(ctx, []byte(`not json`), "ok")
	assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration)

	err = f.svc.HandleWebhook(ctx, webhook(billing.EventSubscriptionCharged, "sub_unknown"), "ok")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{"event":"payment.captured","payload":{}}`), "ok"))
}

func TestActivateManually(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)
	checkout, err := f.svc.CreateSubscription(ctx, f.admin.ID, SubscriptionInput{PlanID: p.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.ActivateManually(ctx, checkout.SubscriptionID))
	assert.True(t, f.subscribed(t))
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	p := f.plan(t)
	now := time.Now()

	old := &model.PendingSubscription{AdminID: f.admin.ID, PlanID: p.ID, ProviderSubscriptionID: "sub_old", Status: model.SubscriptionStatusCreated, CreatedAt: now.Add(-25 * time.Hour)}
	fresh := &model.PendingSubscription{AdminID: f.admin.ID, PlanID: p.ID, ProviderSubscriptionID: "sub_fresh", Status: model.SubscriptionStatusCreated, CreatedAt: now.Add(-time.Hour)}
	// An old live row is left alone whatever its age.
	live := &model.Subscription{AdminID: f.admin.ID, PlanID: p.ID, ProviderSubscriptionID: "sub_live", Status: model.SubscriptionStatusActive, CreatedAt: now.Add(-31 * 24 * time.Hour)}
	require.NoError(t, f.store.Subscriptions().CreatePending(ctx, old))
	require.NoError(t, f.store.Subscriptions().CreatePending(ctx, fresh))
	require.NoError(t, f.store.Subscriptions().Create(ctx, live))

	report, err := f.svc.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, CleanupReport{PendingDeleted: 1}, report)

	got, err := f.store.Subscriptions().GetByProviderID(ctx, "sub_live")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, got.Status)
	pending, err := f.store.Subscriptions().GetPending(ctx, "sub_fresh")
	require.NoError(t, err)
	assert.NotNil(t, pending)

	report, err = f.svc.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, CleanupReport{}, report)
}
