package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SeatRepository struct {
	*base.Repository
}

func NewSeatRepository(db base.Querier) *SeatRepository {
	return &SeatRepository{Repository: base.NewRepository(db)}
}

// CreateBatch создаёт места одним пакетом
func (r *SeatRepository) CreateBatch(ctx context.Context, seats []*model.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	query := `
		INSERT INTO seats (id, admin_id, seat_number)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	batch := &pgx.Batch{}
	for _, s := range seats {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		seat := s
		batch.Queue(query, s.ID, s.AdminID, s.Number).QueryRow(func(row pgx.Row) error {
			return row.Scan(&seat.CreatedAt)
		})
	}

	if err := base.SendBatch(ctx, r.DB(), batch); err != nil {
		return fmt.Errorf("create seats: %w", err)
	}

	return nil
}

// ListByAdmin returns every seat with the occupant's shift numbers.
func (r *SeatRepository) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Seat, error) {
	query := `
		SELECT s.id, s.admin_id, s.seat_number, s.reserved_by, s.created_at,
		       COALESCE(array_agg(sh.shift_number ORDER BY sh.shift_number)
		                FILTER (WHERE sh.shift_number IS NOT NULL), '{}')
		FROM seats s
		LEFT JOIN student_shifts ss ON ss.student_id = s.reserved_by
		LEFT JOIN shifts sh ON sh.id = ss.shift_id
		WHERE s.admin_id = $1
		GROUP BY s.id
		ORDER BY s.seat_number
	`

	rows, err := r.DB().Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	defer rows.Close()

	var seats []*model.Seat
	for rows.Next() {
		var seat model.Seat
		err := rows.Scan(
			&seat.ID,
			&seat.AdminID,
			&seat.Number,
			&seat.ReservedBy,
			&seat.CreatedAt,
			&seat.ShiftNumbers,
		)
		if err != nil {
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		seats = append(seats, &seat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}

	return seats, nil
}

func (r *SeatRepository) MaxNumber(ctx context.Context, adminID uuid.UUID) (int, error) {
	var n int
	err := r.DB().QueryRow(ctx, `SELECT COALESCE(MAX(seat_number), 0) FROM seats WHERE admin_id = $1`, adminID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max seat number: %w", err)
	}
	return n, nil
}

func (r *SeatRepository) Count(ctx context.Context, adminID uuid.UUID) (int, error) {
	var n int
	err := r.DB().QueryRow(ctx, `SELECT COUNT(*) FROM seats WHERE admin_id = $1`, adminID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count seats: %w", err)
	}
	return n, nil
}

// GetByID получает место в пределах администратора
func (r *SeatRepository) GetByID(ctx context.Context, adminID, seatID uuid.UUID) (*model.Seat, error) {
	query := `
		SELECT id, admin_id, seat_number, reserved_by, created_at
		FROM seats
		WHERE id = $1 AND admin_id = $2
	`

	var seat model.Seat
	err := r.DB().QueryRow(ctx, query, seatID, adminID).Scan(
		&seat.ID,
		&seat.AdminID,
		&seat.Number,
		&seat.ReservedBy,
		&seat.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get seat by id: %w", err)
	}

	return &seat, nil
}

// Reserve занимает место, только если оно свободно
func (r *SeatRepository) Reserve(ctx context.Context, seatID, studentID uuid.UUID) (bool, error) {
	n, err := r.ExecAffected(ctx,
		`UPDATE seats SET reserved_by = $1 WHERE id = $2 AND reserved_by IS NULL`,
		studentID, seatID,
	)
	if err != nil {
		return false, fmt.Errorf("reserve seat: %w", err)
	}
	return n == 1, nil
}

func (r *SeatRepository) Release(ctx context.Context, seatID, studentID uuid.UUID) (bool, error) {
	n, err := r.ExecAffected(ctx,
		`UPDATE seats SET reserved_by = NULL WHERE id = $1 AND reserved_by = $2`,
		seatID, studentID,
	)
	if err != nil {
		return false, fmt.Errorf("release seat: %w", err)
	}
	return n == 1, nil
}

func (r *SeatRepository) DeleteFree(ctx context.Context, seatID uuid.UUID) (bool, error) {
	n, err := r.ExecAffected(ctx, `DELETE FROM seats WHERE id = $1 AND reserved_by IS NULL`, seatID)
	if err != nil {
		return false, fmt.Errorf("delete seat: %w", err)
	}
	return n == 1, nil
}
