package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/repository/base"
	"github.com/Freeeeeet/studyroom/internal/shiftplan"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type ShiftRepository struct {
	db base.Querier
}

func NewShiftRepository(db base.Querier) *ShiftRepository {
	return &ShiftRepository{db: db}
}

func clockToTime(c shiftplan.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: c.Duration().Microseconds(), Valid: true}
}

func clockFromTime(t pgtype.Time) shiftplan.Clock {
	return shiftplan.ClockFromDuration(time.Duration(t.Microseconds) * time.Microsecond)
}

// ListByAdmin получает все смены администратора, отсортированные по номеру
func (r *ShiftRepository) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Shift, error) {
	query := `
		SELECT id, admin_id, shift_number, start_time, end_time, fees, created_at
		FROM shifts
		WHERE admin_id = $1
		ORDER BY shift_number
	`

	rows, err := r.db.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []*model.Shift
	for rows.Next() {
		var (
			shift      model.Shift
			start, end pgtype.Time
		)
		err := rows.Scan(
			&shift.ID,
			&shift.AdminID,
			&shift.Number,
			&start,
			&end,
			&shift.Fee,
			&shift.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shift.StartTime = clockFromTime(start)
		shift.EndTime = clockFromTime(end)
		shifts = append(shifts, &shift)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}

	return shifts, nil
}

// CreateBatch inserts the whole shift set with a single round trip.
func (r *ShiftRepository) CreateBatch(ctx context.Context, shifts []*model.Shift) error {
	if len(shifts) == 0 {
		return nil
	}

	query := `
		INSERT INTO shifts (id, admin_id, shift_number, start_time, end_time, fees)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	batch := &pgx.Batch{}
	for _, s := range shifts {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		shift := s
		batch.Queue(query, s.ID, s.AdminID, s.Number, clockToTime(s.StartTime), clockToTime(s.EndTime), s.Fee).
			QueryRow(func(row pgx.Row) error {
				return row.Scan(&shift.CreatedAt)
			})
	}

	if err := base.SendBatch(ctx, r.db, batch); err != nil {
		return fmt.Errorf("create shifts: %w", err)
	}

	return nil
}

func (r *ShiftRepository) DeleteByAdmin(ctx context.Context, adminID uuid.UUID) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM shifts WHERE admin_id = $1`, adminID)
	if err != nil {
		return 0, fmt.Errorf("delete shifts: %w", base.Translate(err))
	}
	return result.RowsAffected(), nil
}

func (r *ShiftRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM shifts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete shift: %w", base.Translate(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete shift: %w", storage.ErrNotFound)
	}

	return nil
}
