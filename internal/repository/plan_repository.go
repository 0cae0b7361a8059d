package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/repository/base"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PlanRepository struct {
	db base.Querier
}

func NewPlanRepository(db base.Querier) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, name, description, amount, currency, billing_cycle, interval_count,
	provider_plan_id, created_at, updated_at`

func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	var p model.SubscriptionPlan
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Amount,
		&p.Currency,
		&p.BillingCycle,
		&p.IntervalCount,
		&p.ProviderPlanID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create создаёт тарифный план
func (r *PlanRepository) Create(ctx context.Context, plan *model.SubscriptionPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}

	query := `
		INSERT INTO subscription_plans (id, name, description, amount, currency, billing_cycle, interval_count, provider_plan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		plan.ID,
		plan.Name,
		plan.Description,
		plan.Amount,
		plan.Currency,
		plan.BillingCycle,
		plan.IntervalCount,
		plan.ProviderPlanID,
	).Scan(&plan.CreatedAt, &plan.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create plan: %w", base.Translate(err))
	}

	return nil
}

func (r *PlanRepository) Update(ctx context.Context, plan *model.SubscriptionPlan) error {
	query := `
		UPDATE subscription_plans
		SET name = $1, description = $2, amount = $3, currency = $4, billing_cycle = $5,
		    interval_count = $6, provider_plan_id = $7, updated_at = now()
		WHERE id = $8
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		plan.Name,
		plan.Description,
		plan.Amount,
		plan.Currency,
		plan.BillingCycle,
		plan.IntervalCount,
		plan.ProviderPlanID,
		plan.ID,
	).Scan(&plan.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("update plan: %w", storage.ErrNotFound)
		}
		return fmt.Errorf("update plan: %w", base.Translate(err))
	}

	return nil
}

func (r *PlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM subscription_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", base.Translate(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete plan: %w", storage.ErrNotFound)
	}

	return nil
}

func (r *PlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = $1`

	plan, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plan by id: %w", err)
	}

	return plan, nil
}

func (r *PlanRepository) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans ORDER BY amount, name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.SubscriptionPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	return plans, nil
}
