package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EnrollmentRepository работает с таблицей student_shifts
type EnrollmentRepository struct {
	*base.Repository
}

func NewEnrollmentRepository(db base.Querier) *EnrollmentRepository {
	return &EnrollmentRepository{Repository: base.NewRepository(db)}
}

func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Enrollment, error) {
	query := `
		SELECT ss.student_id, ss.shift_id, ss.monthly_fee, ss.created_at
		FROM student_shifts ss
		JOIN shifts s ON s.id = ss.shift_id
		WHERE ss.student_id = $1
		ORDER BY s.shift_number
	`

	rows, err := r.DB().Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*model.Enrollment
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.StudentID, &e.ShiftID, &e.MonthlyFee, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}

	return enrollments, nil
}

// Replace swaps the student's shift links for the given set. It must run inside
// a transaction to be atomic.
func (r *EnrollmentRepository) Replace(ctx context.Context, studentID uuid.UUID, enrollments []*model.Enrollment) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM student_shifts WHERE student_id = $1`, studentID)
	for _, e := range enrollments {
		batch.Queue(
			`INSERT INTO student_shifts (student_id, shift_id, monthly_fee) VALUES ($1, $2, $3)`,
			studentID, e.ShiftID, e.MonthlyFee,
		)
	}

	if err := base.SendBatch(ctx, r.DB(), batch); err != nil {
		return fmt.Errorf("replace enrollments: %w", err)
	}

	return nil
}

func (r *EnrollmentRepository) DeleteByStudent(ctx context.Context, studentID uuid.UUID) error {
	if _, err := r.ExecAffected(ctx, `DELETE FROM student_shifts WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("delete enrollments: %w", err)
	}
	return nil
}

// AnyForShifts проверяет, записан ли хотя бы один студент на любую из смен
func (r *EnrollmentRepository) AnyForShifts(ctx context.Context, shiftIDs []uuid.UUID) (bool, error) {
	if len(shiftIDs) == 0 {
		return false, nil
	}

	var exists bool
	err := r.DB().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM student_shifts WHERE shift_id = ANY($1))`,
		shiftIDs,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollments: %w", err)
	}

	return exists, nil
}
