package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type DiscountRepository struct {
	*base.Repository
}

func NewDiscountRepository(db base.Querier) *DiscountRepository {
	return &DiscountRepository{Repository: base.NewRepository(db)}
}

// ListByAdmin получает скидки администратора по возрастанию порога
func (r *DiscountRepository) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.ShiftDiscount, error) {
	query := `
		SELECT id, admin_id, min_shifts, discount_percentage
		FROM shift_discounts
		WHERE admin_id = $1
		ORDER BY min_shifts
	`

	rows, err := r.DB().Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	var discounts []*model.ShiftDiscount
	for rows.Next() {
		var d model.ShiftDiscount
		if err := rows.Scan(&d.ID, &d.AdminID, &d.MinShifts, &d.Percentage); err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		discounts = append(discounts, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}

	return discounts, nil
}

func (r *DiscountRepository) CreateBatch(ctx context.Context, discounts []*model.ShiftDiscount) error {
	if len(discounts) == 0 {
		return nil
	}

	query := `
		INSERT INTO shift_discounts (id, admin_id, min_shifts, discount_percentage)
		VALUES ($1, $2, $3, $4)
	`

	batch := &pgx.Batch{}
	for _, d := range discounts {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		batch.Queue(query, d.ID, d.AdminID, d.MinShifts, d.Percentage)
	}

	if err := base.SendBatch(ctx, r.DB(), batch); err != nil {
		return fmt.Errorf("create discounts: %w", err)
	}

	return nil
}

func (r *DiscountRepository) DeleteByAdmin(ctx context.Context, adminID uuid.UUID) (int64, error) {
	n, err := r.ExecAffected(ctx, `DELETE FROM shift_discounts WHERE admin_id = $1`, adminID)
	if err != nil {
		return 0, fmt.Errorf("delete discounts: %w", err)
	}
	return n, nil
}

// DeleteAbove drops tiers whose threshold exceeds maxShifts.
func (r *DiscountRepository) DeleteAbove(ctx context.Context, adminID uuid.UUID, maxShifts int) (int64, error) {
	n, err := r.ExecAffected(ctx, `DELETE FROM shift_discounts WHERE admin_id = $1 AND min_shifts > $2`, adminID, maxShifts)
	if err != nil {
		return 0, fmt.Errorf("prune discounts: %w", err)
	}
	return n, nil
}
