// Package billing talks to the payment provider.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// PlanSpec describes a recurring plan to create at the provider.
type PlanSpec struct {
	Name        string
	Description string
	Amount      int64 // minor units
	Currency    string
	Period      string // monthly | yearly
	Interval    int
}

// SubscriptionSpec describes a subscription to create at the provider.
type SubscriptionSpec struct {
	ProviderPlanID string
	TotalCount     int
	CustomerEmail  string
	CustomerPhone  string
	AdminID        string
}

// ProviderSubscription is what the provider returned for a new subscription.
type ProviderSubscription struct {
	ID       string
	Status   string
	ShortURL string
}

// Gateway is the provider surface the billing service depends on.
type Gateway interface {
	CreatePlan(ctx context.Context, spec PlanSpec) (string, error)
	CreateSubscription(ctx context.Context, spec SubscriptionSpec) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, id string) error
	VerifyWebhook(body []byte, signature string) bool
	// KeyID is the public key the checkout widget needs.
	KeyID() string
}

// Webhook event names handled by the service.
const (
	EventSubscriptionAuthenticated = "subscription.authenticated"
	EventSubscriptionCharged       = "subscription.charged"
	EventSubscriptionCancelled     = "subscription.cancelled"
	EventSubscriptionHalted        = "subscription.halted"
)

// WebhookEvent is the subset of a provider webhook the service reads.
type WebhookEvent struct {
	Event          string
	SubscriptionID string
	Status         string
	PlanID         string
}

var ErrMalformedWebhook = errors.New("malformed webhook payload")

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Subscription *struct {
			Entity struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				PlanID string `json:"plan_id"`
			} `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// ParseWebhook decodes body. Subscription events without a subscription
// entity are malformed; other events only need a name.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if p.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedWebhook)
	}

	ev := &WebhookEvent{Event: p.Event}
	if sub := p.Payload.Subscription; sub != nil {
		ev.SubscriptionID = sub.Entity.ID
		ev.Status = sub.Entity.Status
		ev.PlanID = sub.Entity.PlanID
	}

	switch ev.Event {
	case EventSubscriptionAuthenticated, EventSubscriptionCharged, EventSubscriptionCancelled, EventSubscriptionHalted:
		if ev.SubscriptionID == "" {
			return nil, fmt.Errorf("%w: %s without subscription id", ErrMalformedWebhook, ev.Event)
		}
	}
	return ev, nil
}
