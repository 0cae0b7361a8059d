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

type AdminRepository struct {
	db base.Querier
}

func NewAdminRepository(db base.Querier) *AdminRepository {
	return &AdminRepository{db: db}
}

const adminColumns = `id, email, password_hash, name, business_name, mobile_no, is_verified, is_subscribed,
	is_master, otp, otp_expires, shift_config_version, created_at, updated_at`

func scanAdmin(row pgx.Row) (*model.Admin, error) {
	var a model.Admin
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Name,
		&a.BusinessName,
		&a.MobileNo,
		&a.IsVerified,
		&a.IsSubscribed,
		&a.IsMaster,
		&a.OTP,
		&a.OTPExpires,
		&a.ShiftConfigVersion,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create создаёт нового администратора
func (r *AdminRepository) Create(ctx context.Context, admin *model.Admin) error {
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}

	query := `
		INSERT INTO admin (id, email, password_hash, name, business_name, mobile_no, is_verified, is_subscribed, is_master, otp, otp_expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING shift_config_version, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		admin.ID,
		admin.Email,
		admin.PasswordHash,
		admin.Name,
		admin.BusinessName,
		admin.MobileNo,
		admin.IsVerified,
		admin.IsSubscribed,
		admin.IsMaster,
		admin.OTP,
		admin.OTPExpires,
	).Scan(&admin.ShiftConfigVersion, &admin.CreatedAt, &admin.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create admin: %w", base.Translate(err))
	}

	return nil
}

// GetByID получает администратора по ID
func (r *AdminRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admin WHERE id = $1`

	admin, err := scanAdmin(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get admin by id: %w", err)
	}

	return admin, nil
}

// GetByEmail получает администратора по email
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admin WHERE lower(email) = lower($1)`

	admin, err := scanAdmin(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}

	return admin, nil
}

// Update saves profile fields, credentials and verification state.
func (r *AdminRepository) Update(ctx context.Context, admin *model.Admin) error {
	query := `
		UPDATE admin
		SET password_hash = $1, name = $2, business_name = $3, mobile_no = $4,
		    is_verified = $5, otp = $6, otp_expires = $7, updated_at = now()
		WHERE id = $8
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		admin.PasswordHash,
		admin.Name,
		admin.BusinessName,
		admin.MobileNo,
		admin.IsVerified,
		admin.OTP,
		admin.OTPExpires,
		admin.ID,
	).Scan(&admin.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("update admin: %w", storage.ErrNotFound)
		}
		return fmt.Errorf("update admin: %w", base.Translate(err))
	}

	return nil
}

func (r *AdminRepository) SetSubscribed(ctx context.Context, id uuid.UUID, subscribed bool) error {
	query := `UPDATE admin SET is_subscribed = $1, updated_at = now() WHERE id = $2`

	result, err := r.db.Exec(ctx, query, subscribed, id)
	if err != nil {
		return fmt.Errorf("set admin subscribed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("set admin subscribed: %w", storage.ErrNotFound)
	}

	return nil
}

// ClaimEmail берёт advisory-блокировку на email до конца транзакции
func (r *AdminRepository) ClaimEmail(ctx context.Context, email string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, email)
	if err != nil {
		return fmt.Errorf("claim email: %w", err)
	}
	return nil
}

// LockConfig берёт блокировку строки администратора до конца транзакции
func (r *AdminRepository) LockConfig(ctx context.Context, id uuid.UUID, exclusive bool) (int64, error) {
	query := `SELECT shift_config_version FROM admin WHERE id = $1 FOR SHARE`
	if exclusive {
		query = `SELECT shift_config_version FROM admin WHERE id = $1 FOR UPDATE`
	}

	var version int64
	err := r.db.QueryRow(ctx, query, id).Scan(&version)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, fmt.Errorf("lock shift config: %w", storage.ErrNotFound)
		}
		return 0, fmt.Errorf("lock shift config: %w", err)
	}

	return version, nil
}

func (r *AdminRepository) BumpConfigVersion(ctx context.Context, id uuid.UUID, from int64) (int64, error) {
	query := `
		UPDATE admin
		SET shift_config_version = shift_config_version + 1, updated_at = now()
		WHERE id = $1 AND shift_config_version = $2
		RETURNING shift_config_version
	`

	var version int64
	err := r.db.QueryRow(ctx, query, id, from).Scan(&version)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, fmt.Errorf("bump shift config version: %w", storage.ErrVersionConflict)
		}
		return 0, fmt.Errorf("bump shift config version: %w", err)
	}

	return version, nil
}
