package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/repository/base"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SubscriptionRepository работает с pending_subscriptions и subscriptions
type SubscriptionRepository struct {
	db base.Querier
}

func NewSubscriptionRepository(db base.Querier) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const pendingColumns = `id, admin_id, plan_id, subscription_id, status, customer_email, customer_phone, created_at`

func scanPending(row pgx.Row) (*model.PendingSubscription, error) {
	var p model.PendingSubscription
	err := row.Scan(
		&p.ID,
		&p.AdminID,
		&p.PlanID,
		&p.ProviderSubscriptionID,
		&p.Status,
		&p.CustomerEmail,
		&p.CustomerPhone,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *SubscriptionRepository) CreatePending(ctx context.Context, p *model.PendingSubscription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO pending_subscriptions (id, admin_id, plan_id, subscription_id, status, customer_email, customer_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.ID,
		p.AdminID,
		p.PlanID,
		p.ProviderSubscriptionID,
		p.Status,
		p.CustomerEmail,
		p.CustomerPhone,
	).Scan(&p.CreatedAt)

	if err != nil {
		return fmt.Errorf("create pending subscription: %w", base.Translate(err))
	}

	return nil
}

func (r *SubscriptionRepository) GetPending(ctx context.Context, providerID string) (*model.PendingSubscription, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_subscriptions WHERE subscription_id = $1`

	p, err := scanPending(r.db.QueryRow(ctx, query, providerID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending subscription: %w", err)
	}

	return p, nil
}

func (r *SubscriptionRepository) ListPendingByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.PendingSubscription, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_subscriptions WHERE admin_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("list pending subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*model.PendingSubscription
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending subscription: %w", err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending subscriptions: %w", err)
	}

	return out, nil
}

func (r *SubscriptionRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM pending_subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete pending subscription: %w", err)
	}
	return nil
}

// DeletePendingBefore удаляет незавершённые подписки, созданные раньше t
func (r *SubscriptionRepository) DeletePendingBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM pending_subscriptions WHERE created_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("delete stale pending subscriptions: %w", err)
	}
	return result.RowsAffected(), nil
}

const subscriptionColumns = `id, admin_id, plan_id, subscription_id, status, customer_email, customer_phone,
	created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.ID,
		&s.AdminID,
		&s.PlanID,
		&s.ProviderSubscriptionID,
		&s.Status,
		&s.CustomerEmail,
		&s.CustomerPhone,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *model.Subscription) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO subscriptions (id, admin_id, plan_id, subscription_id, status, customer_email, customer_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		s.ID,
		s.AdminID,
		s.PlanID,
		s.ProviderSubscriptionID,
		s.Status,
		s.CustomerEmail,
		s.CustomerPhone,
	).Scan(&s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create subscription: %w", base.Translate(err))
	}

	return nil
}

func (r *SubscriptionRepository) GetByProviderID(ctx context.Context, providerID string) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE subscription_id = $1`

	s, err := scanSubscription(r.db.QueryRow(ctx, query, providerID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return s, nil
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, providerID string, status model.SubscriptionStatus) error {
	result, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = now() WHERE subscription_id = $2`,
		status, providerID,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("update subscription status: %w", storage.ErrNotFound)
	}

	return nil
}

func (r *SubscriptionRepository) ListLiveByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE admin_id = $1 AND status IN ('active', 'authenticated')
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	return out, nil
}
