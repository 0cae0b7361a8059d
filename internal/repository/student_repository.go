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

type StudentRepository struct {
	db base.Querier
}

func NewStudentRepository(db base.Querier) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, admin_id, name, email, password_hash, is_verified, payment_done, seat_id,
	otp, otp_expires, created_at, updated_at`

func scanStudent(row pgx.Row) (*model.Student, error) {
	var s model.Student
	err := row.Scan(
		&s.ID,
		&s.AdminID,
		&s.Name,
		&s.Email,
		&s.PasswordHash,
		&s.IsVerified,
		&s.PaymentDone,
		&s.SeatID,
		&s.OTP,
		&s.OTPExpires,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create создаёт нового студента
func (r *StudentRepository) Create(ctx context.Context, student *model.Student) error {
	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}

	query := `
		INSERT INTO students (id, admin_id, name, email, password_hash, is_verified, payment_done, seat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		student.ID,
		student.AdminID,
		student.Name,
		student.Email,
		student.PasswordHash,
		student.IsVerified,
		student.PaymentDone,
		student.SeatID,
	).Scan(&student.CreatedAt, &student.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create student: %w", base.Translate(err))
	}

	return nil
}

// GetByID получает студента администратора по ID
func (r *StudentRepository) GetByID(ctx context.Context, adminID, id uuid.UUID) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1 AND admin_id = $2`

	student, err := scanStudent(r.db.QueryRow(ctx, query, id, adminID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get student by id: %w", err)
	}

	return student, nil
}

func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE lower(email) = lower($1)`

	student, err := scanStudent(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get student by email: %w", err)
	}

	return student, nil
}

func (r *StudentRepository) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE admin_id = $1 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []*model.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, student)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	return students, nil
}

// Update сохраняет изменяемые поля студента (кроме места)
func (r *StudentRepository) Update(ctx context.Context, student *model.Student) error {
	query := `
		UPDATE students
		SET name = $1, password_hash = $2, is_verified = $3, payment_done = $4,
		    otp = $5, otp_expires = $6, updated_at = now()
		WHERE id = $7
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		student.Name,
		student.PasswordHash,
		student.IsVerified,
		student.PaymentDone,
		student.OTP,
		student.OTPExpires,
		student.ID,
	).Scan(&student.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("update student: %w", storage.ErrNotFound)
		}
		return fmt.Errorf("update student: %w", base.Translate(err))
	}

	return nil
}

func (r *StudentRepository) SetSeat(ctx context.Context, id uuid.UUID, seatID *uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE students SET seat_id = $1, updated_at = now() WHERE id = $2`, seatID, id)
	if err != nil {
		return fmt.Errorf("set student seat: %w", base.Translate(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("set student seat: %w", storage.ErrNotFound)
	}

	return nil
}

func (r *StudentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", base.Translate(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete student: %w", storage.ErrNotFound)
	}

	return nil
}
