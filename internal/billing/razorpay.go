package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
	"go.uber.org/zap"
)

// Razorpay implements Gateway with the official SDK. The SDK has no context
// support, so every call is bounded by timeout and abandoned when it expires.
type Razorpay struct {
	client        *razorpay.Client
	keyID         string
	webhookSecret string
	timeout       time.Duration
	logger        *zap.Logger
}

func NewRazorpay(keyID, keySecret, webhookSecret string, timeout time.Duration, logger *zap.Logger) *Razorpay {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Razorpay{
		client:        razorpay.NewClient(keyID, keySecret),
		keyID:         keyID,
		webhookSecret: webhookSecret,
		timeout:       timeout,
		logger:        logger,
	}
}

func (r *Razorpay) KeyID() string {
	return r.keyID
}

func (r *Razorpay) CreatePlan(ctx context.Context, spec PlanSpec) (string, error) {
	data := map[string]interface{}{
		"period":   spec.Period,
		"interval": spec.Interval,
		"item": map[string]interface{}{
			"name":        spec.Name,
			"amount":      spec.Amount,
			"currency":    spec.Currency,
			"description": spec.Description,
		},
		"notes": map[string]interface{}{
			"plan": spec.Name,
		},
	}

	resp, err := r.call(ctx, "create plan", func() (map[string]interface{}, error) {
		return r.client.Plan.Create(data, nil)
	})
	if err != nil {
		return "", err
	}

	id, _ := resp["id"].(string)
	if id == "" {
		return "", errors.New("create plan: provider returned no id")
	}

	r.logger.Info("Provider plan created", zap.String("provider_plan_id", id))
	return id, nil
}

func (r *Razorpay) CreateSubscription(ctx context.Context, spec SubscriptionSpec) (*ProviderSubscription, error) {
	data := map[string]interface{}{
		"plan_id":         spec.ProviderPlanID,
		"total_count":     spec.TotalCount,
		"customer_notify": 1,
		"notify_info": map[string]interface{}{
			"notify_email": spec.CustomerEmail,
			"notify_phone": spec.CustomerPhone,
		},
		"notes": map[string]interface{}{
			"admin_id": spec.AdminID,
		},
	}

	resp, err := r.call(ctx, "create subscription", func() (map[string]interface{}, error) {
		return r.client.Subscription.Create(data, nil)
	})
	if err != nil {
		return nil, err
	}

	sub := &ProviderSubscription{}
	sub.ID, _ = resp["id"].(string)
	sub.Status, _ = resp["status"].(string)
	sub.ShortURL, _ = resp["short_url"].(string)
	if sub.ID == "" {
		return nil, errors.New("create subscription: provider returned no id")
	}

	r.logger.Info("Provider subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("status", sub.Status),
	)
	return sub, nil
}

func (r *Razorpay) CancelSubscription(ctx context.Context, id string) error {
	_, err := r.call(ctx, "cancel subscription", func() (map[string]interface{}, error) {
		return r.client.Subscription.Cancel(id, map[string]interface{}{"cancel_at_cycle_end": 0}, nil)
	})
	if err != nil {
		return err
	}

	r.logger.Info("Provider subscription cancelled", zap.String("subscription_id", id))
	return nil
}

// VerifyWebhook checks the HMAC-SHA256 signature of the raw body.
func (r *Razorpay) VerifyWebhook(body []byte, signature string) bool {
	if r.webhookSecret == "" || signature == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, r.webhookSecret)
}

type callResult struct {
	resp map[string]interface{}
	err  error
}

func (r *Razorpay) call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		resp, err := fn()
		done <- callResult{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w", op, res.err)
		}
		return res.resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

var _ Gateway = (*Razorpay)(nil)
