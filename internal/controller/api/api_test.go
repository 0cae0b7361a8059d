package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/auth"
	"github.com/Freeeeeet/studyroom/internal/billing"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/notify"
	"github.com/Freeeeeet/studyroom/internal/service"
	"github.com/Freeeeeet/studyroom/internal/storage/memory"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGateway struct {
	mu  sync.Mutex
	seq int
}

func (g *stubGateway) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *stubGateway) CreatePlan(context.Context, billing.PlanSpec) (string, error) {
	return g.next("plan"), nil
}

func (g *stubGateway) CreateSubscription(context.Context, billing.SubscriptionSpec) (*billing.ProviderSubscription, error) {
	return &billing.ProviderSubscription{ID: g.next("sub"), Status: "created"}, nil
}

func (g *stubGateway) CancelSubscription(context.Context, string) error { return nil }

func (g *stubGateway) VerifyWebhook(_ []byte, signature string) bool { return signature == "good" }

func (g *stubGateway) KeyID() string { return "rzp_test" }

type codes struct {
	mu   sync.Mutex
	last map[string]string
}

func (c *codes) SendOTP(_ context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[email] = code
	return nil
}

func (c *codes) get(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[email]
}

type harness struct {
	store  *memory.Store
	tokens *auth.Issuer
	mail   *codes
	server *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	store := memory.New()
	alerts := notify.NewLogAlerter(logger)

	h := &harness{
		store:  store,
		tokens: auth.NewIssuer("api-test", time.Hour),
		mail:   &codes{last: map[string]string{}},
	}
	h.server = NewServer(Options{RequestTimeout: time.Minute}, Services{
		Auth:     service.NewAuthService(store, h.tokens, h.mail, 0, alerts, logger),
		Shifts:   service.NewShiftService(store, alerts, logger),
		Seats:    service.NewSeatService(store, alerts, logger),
		Students: service.NewStudentService(store, alerts, logger),
		Billing:  service.NewBillingService(store, &stubGateway{}, alerts, logger),
	}, h.tokens, logger)
	return h
}

// admin stores an admin and returns a session token for it.
func (h *harness) admin(t *testing.T, subscribed, master bool) (*model.Admin, string) {
	t.Helper()
	a := &model.Admin{
		Email:        uuid.NewString() + "@example.com",
		IsVerified:   true,
		IsSubscribed: subscribed,
		IsMaster:     master,
	}
	require.NoError(t, h.store.Admins().Create(context.Background(), a))

	tok, err := h.tokens.Issue(auth.Identity{UserID: a.ID, Email: a.Email, Role: auth.RoleAdmin, IsMaster: master})
	require.NoError(t, err)
	return a, tok
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, ok := body.([]byte)
		if !ok {
			var err error
			raw, err = json.Marshal(body)
			require.NoError(t, err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := h.server.App().Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestHandlersGetRequestDeadline(t *testing.T) {
	h := newHarness(t)

	var remaining time.Duration
	var bounded bool
	// Routes added after NewServer still pass through the app middleware.
	h.server.App().Get("/deadline", func(c *fiber.Ctx) error {
		var deadline time.Time
		deadline, bounded = c.UserContext().Deadline()
		remaining = time.Until(deadline)
		return c.SendStatus(fiber.StatusNoContent)
	})

	status, _ := h.do(t, http.MethodGet, "/deadline", "", nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.True(t, bounded)
	assert.LessOrEqual(t, remaining, time.Minute)

	// Without a timeout the user context is left as is.
	bare := NewServer(Options{}, Services{}, h.tokens, zap.NewNop())
	bare.App().Get("/deadline", func(c *fiber.Ctx) error {
		_, bounded = c.UserContext().Deadline()
		return c.SendStatus(fiber.StatusNoContent)
	})
	resp, err := bare.App().Test(httptest.NewRequest(http.MethodGet, "/deadline", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, bounded)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  *apperr.Error
		want int
	}{
		{apperr.Unauthorized("x"), http.StatusUnauthorized},
		{apperr.Forbidden("x"), http.StatusForbidden},
		{apperr.NotFound("x"), http.StatusNotFound},
		{apperr.Invalid("x"), http.StatusBadRequest},
		{apperr.Conflict(apperr.ReasonSeatOccupied, "x"), http.StatusConflict},
		{apperr.Upstream(nil, true, "x"), http.StatusBadGateway},
		{apperr.Upstream(nil, false, "x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), "code %s reason %s", tt.err.Code, tt.err.Reason)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodGet, "/api/admin/seats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apperr.CodeUnauthorized, decode[ErrorBody](t, body).Code)

	status, _ = h.do(t, http.MethodGet, "/api/admin/seats", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestUnsubscribedAdminIsForbidden(t *testing.T) {
	h := newHarness(t)
	_, tok := h.admin(t, false, false)

	status, body := h.do(t, http.MethodGet, "/api/admin/shifts", tok, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apperr.CodeForbidden, decode[ErrorBody](t, body).Code)

	// Profile and billing stay open so the admin can subscribe.
	status, _ = h.do(t, http.MethodGet, "/api/admin/profile", tok, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodGet, "/api/admin/plans", tok, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodPost, "/api/admin/plans", tok, map[string]any{
		"name": "Monthly", "amount": 49900, "billing_cycle": "monthly",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestValidationEnvelope(t *testing.T) {
	h := newHarness(t)
	_, tok := h.admin(t, true, false)

	status, body := h.do(t, http.MethodPost, "/api/admin/seats", tok, map[string]any{"count": 101})
	assert.Equal(t, http.StatusBadRequest, status)
	e := decode[ErrorBody](t, body)
	assert.Equal(t, apperr.CodeInvalidConfiguration, e.Code)
	assert.Contains(t, e.Message, "count")

	status, _ = h.do(t, http.MethodPost, "/api/admin/seats", tok, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodDelete, "/api/admin/seats/not-a-uuid", tok, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRoomFlow(t *testing.T) {
	h := newHarness(t)
	_, tok := h.admin(t, true, false)

	status, body := h.do(t, http.MethodPost, "/api/admin/shifts", tok, map[string]any{
		"num_shifts":      2,
		"hours_per_shift": 6,
		"start_time":      "08:00",
		"fees":            []int64{1000, 1000},
		"discount2Shifts": 10,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	cfg := decode[model.ShiftConfig](t, body)
	assert.Equal(t, int64(1), cfg.Version)
	require.Len(t, cfg.Shifts, 2)
	assert.Equal(t, "14:00", cfg.Shifts[0].EndTime.String())

	status, body = h.do(t, http.MethodPost, "/api/admin/seats", tok, map[string]any{"count": 2})
	require.Equal(t, http.StatusCreated, status, string(body))
	seats := decode[[]model.Seat](t, body)
	require.Len(t, seats, 2)

	status, body = h.do(t, http.MethodPost, "/api/admin/students", tok, map[string]any{
		"name":    "Asha",
		"email":   "asha@example.com",
		"shifts":  []int{1, 2},
		"seat_id": seats[0].ID,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	added := decode[struct {
		Student      model.Student `json:"student"`
		TempPassword string        `json:"temp_password"`
	}](t, body)
	assert.NotEmpty(t, added.TempPassword)
	assert.Equal(t, int64(1800), added.Student.MonthlyFee)

	// A second student cannot take the same seat.
	status, body = h.do(t, http.MethodPost, "/api/admin/students", tok, map[string]any{
		"name":    "Ravi",
		"email":   "ravi@example.com",
		"shifts":  []int{1},
		"seat_id": seats[0].ID,
	})
	assert.Equal(t, http.StatusConflict, status)
	e := decode[ErrorBody](t, body)
	assert.Equal(t, apperr.CodeConflict, e.Code)
	assert.Equal(t, apperr.ReasonSeatAlreadyReserved, e.Reason)

	// Shifts in use cannot be replaced.
	status, body = h.do(t, http.MethodDelete, "/api/admin/shifts", tok, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperr.ReasonShiftsInUse, decode[ErrorBody](t, body).Reason)

	status, body = h.do(t, http.MethodDelete, "/api/admin/seats/"+seats[0].ID.String(), tok, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperr.ReasonSeatOccupied, decode[ErrorBody](t, body).Reason)

	status, body = h.do(t, http.MethodGet, "/api/admin/seats/available", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]model.Seat](t, body), 1)

	studentPath := "/api/admin/students/" + added.Student.ID.String()
	status, _ = h.do(t, http.MethodDelete, studentPath+"/seat", tok, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = h.do(t, http.MethodDelete, studentPath+"/seat", tok, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperr.ReasonNoSeatAllocated, decode[ErrorBody](t, body).Reason)

	status, body = h.do(t, http.MethodPatch, studentPath+"/payment", tok, map[string]any{"paid": true})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, decode[model.Student](t, body).PaymentDone)

	// The student logs in with the generated password and sees their profile.
	status, body = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "asha@example.com", "password": added.TempPassword,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	login := decode[struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}](t, body)
	assert.Equal(t, string(auth.RoleStudent), login.Role)

	status, body = h.do(t, http.MethodGet, "/api/student/me", login.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, int64(1800), decode[model.Student](t, body).MonthlyFee)

	// Students never reach admin routes.
	status, _ = h.do(t, http.MethodGet, "/api/admin/students", login.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodDelete, studentPath, tok, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = h.do(t, http.MethodDelete, "/api/admin/shifts/2?if_version=1", tok, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, body = h.do(t, http.MethodDelete, "/api/admin/shifts?if_version=1", tok, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperr.ReasonVersionMismatch, decode[ErrorBody](t, body).Reason)
}

func TestSignupAndResetOverHTTP(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email": "owner@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := h.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]any{
		"email": "owner@example.com", "otp": h.mail.get("owner@example.com"),
	})
	require.Equal(t, http.StatusOK, status, string(body))
	session := decode[map[string]string](t, body)["token"]
	require.NotEmpty(t, session)

	// Verified but not subscribed.
	status, _ = h.do(t, http.MethodGet, "/api/admin/seats", session, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "owner@example.com"})
	require.Equal(t, http.StatusOK, status)
	status, body = h.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]any{
		"email": "owner@example.com", "otp": h.mail.get("owner@example.com"),
	})
	require.Equal(t, http.StatusOK, status)
	reset := decode[map[string]string](t, body)["reset_token"]
	require.NotEmpty(t, reset)

	// A reset grant is not a session.
	status, _ = h.do(t, http.MethodGet, "/api/admin/profile", reset, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = h.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]any{
		"reset_token": reset, "password": "brandnew",
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "owner@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "owner@example.com", "password": "brandnew",
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestSubscriptionWebhook(t *testing.T) {
	h := newHarness(t)
	_, masterTok := h.admin(t, true, true)
	_, tok := h.admin(t, false, false)

	status, body := h.do(t, http.MethodPost, "/api/admin/plans", masterTok, map[string]any{
		"name": "Monthly", "amount": 49900, "billing_cycle": "monthly",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	plan := decode[model.SubscriptionPlan](t, body)

	status, body = h.do(t, http.MethodPost, "/api/admin/subscriptions", tok, map[string]any{"plan_id": plan.ID})
	require.Equal(t, http.StatusCreated, status, string(body))
	checkout := decode[service.Checkout](t, body)
	assert.Equal(t, "rzp_test", checkout.KeyID)

	event := []byte(fmt.Sprintf(`{"event":%q,"payload":{"subscription":{"entity":{"id":%q,"status":"active"}}}}`,
		billing.EventSubscriptionCharged, checkout.SubscriptionID))

	status, body = h.do(t, http.MethodPost, "/api/webhooks/razorpay", "", event)
	assert.Equal(t, http.StatusUnauthorized, status, string(body))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/razorpay", bytes.NewReader(event))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, "good")
	resp, err := h.server.App().Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status, body = h.do(t, http.MethodGet, "/api/admin/subscriptions/status", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[service.SubscriptionStatus](t, body).IsSubscribed)

	// The flag is read per request, so the same token now opens the room routes.
	status, _ = h.do(t, http.MethodGet, "/api/admin/seats", tok, nil)
	assert.Equal(t, http.StatusOK, status)
}
