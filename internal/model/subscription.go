package model

import (
	"time"

	"github.com/google/uuid"
)

type BillingCycle string

const (
	BillingCycleMonthly  BillingCycle = "monthly"
	BillingCycleYearly   BillingCycle = "yearly"
	BillingCycleLifetime BillingCycle = "lifetime"
)

func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleMonthly, BillingCycleYearly, BillingCycleLifetime:
		return true
	}
	return false
}

// Period is the provider billing period; lifetime plans are charged once monthly.
func (c BillingCycle) Period() string {
	if c == BillingCycleLifetime {
		return string(BillingCycleMonthly)
	}
	return string(c)
}

// TotalCount is the number of charges requested from the provider.
func (c BillingCycle) TotalCount() int {
	if c == BillingCycleLifetime {
		return 1
	}
	return 12
}

type SubscriptionStatus string

const (
	SubscriptionStatusCreated       SubscriptionStatus = "created"
	SubscriptionStatusAuthenticated SubscriptionStatus = "authenticated"
	SubscriptionStatusActive        SubscriptionStatus = "active"
	SubscriptionStatusHalted        SubscriptionStatus = "halted"
	SubscriptionStatusCancelled     SubscriptionStatus = "cancelled"
)

// IsLive reports whether the status grants an admin access.
func (s SubscriptionStatus) IsLive() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusAuthenticated
}

// IsTerminal reports whether the provider has ended the subscription.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusHalted
}

type SubscriptionPlan struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Amount         int64        `json:"amount"` // in minor units
	Currency       string       `json:"currency"`
	BillingCycle   BillingCycle `json:"billing_cycle"`
	IntervalCount  int          `json:"interval_count"`
	ProviderPlanID string       `json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type PendingSubscription struct {
	ID                     uuid.UUID          `json:"id"`
	AdminID                uuid.UUID          `json:"admin_id"`
	PlanID                 uuid.UUID          `json:"plan_id"`
	ProviderSubscriptionID string             `json:"subscription_id"`
	Status                 SubscriptionStatus `json:"status"`
	CustomerEmail          string             `json:"customer_email,omitempty"`
	CustomerPhone          string             `json:"customer_phone,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
}

type Subscription struct {
	ID                     uuid.UUID          `json:"id"`
	AdminID                uuid.UUID          `json:"admin_id"`
	PlanID                 uuid.UUID          `json:"plan_id"`
	ProviderSubscriptionID string             `json:"subscription_id"`
	Status                 SubscriptionStatus `json:"status"`
	CustomerEmail          string             `json:"customer_email,omitempty"`
	CustomerPhone          string             `json:"customer_phone,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}
