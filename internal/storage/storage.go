// Package storage declares the row-store the services work against. The
// PostgreSQL implementation lives in internal/repository, the in-process one in
// internal/storage/memory.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/google/uuid"
)

var (
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("storage: unique constraint violated")
	// ErrNotFound is returned by writes that require an existing row.
	ErrNotFound = errors.New("storage: row not found")
	// ErrVersionConflict is returned when a versioned write lost a race.
	ErrVersionConflict = errors.New("storage: version conflict")
	// ErrRollbackFailed means a failed transaction could not be rolled back.
	ErrRollbackFailed = errors.New("storage: rollback failed")
)

type AdminRepository interface {
	Create(ctx context.Context, admin *model.Admin) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Admin, error)
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
	Update(ctx context.Context, admin *model.Admin) error
	SetSubscribed(ctx context.Context, id uuid.UUID, subscribed bool) error
	// ClaimEmail serialises, until the transaction ends, every writer that
	// creates an admin or a student with email. Emails are unique across both
	// tables, which no single index enforces.
	ClaimEmail(ctx context.Context, email string) error
	// LockConfig locks the admin's shift configuration for the rest of the
	// transaction (exclusive for writers, shared for enrollments) and returns
	// its version.
	LockConfig(ctx context.Context, id uuid.UUID, exclusive bool) (int64, error)
	// BumpConfigVersion moves the version from `from` to `from+1`.
	BumpConfigVersion(ctx context.Context, id uuid.UUID, from int64) (int64, error)
}

type ShiftRepository interface {
	ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Shift, error)
	CreateBatch(ctx context.Context, shifts []*model.Shift) error
	DeleteByAdmin(ctx context.Context, adminID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type DiscountRepository interface {
	ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.ShiftDiscount, error)
	CreateBatch(ctx context.Context, discounts []*model.ShiftDiscount) error
	DeleteByAdmin(ctx context.Context, adminID uuid.UUID) (int64, error)
	DeleteAbove(ctx context.Context, adminID uuid.UUID, maxShifts int) (int64, error)
}

// EnrollmentRepository manages the student <-> shift join.
type EnrollmentRepository interface {
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Enrollment, error)
	Replace(ctx context.Context, studentID uuid.UUID, enrollments []*model.Enrollment) error
	DeleteByStudent(ctx context.Context, studentID uuid.UUID) error
	AnyForShifts(ctx context.Context, shiftIDs []uuid.UUID) (bool, error)
}

type SeatRepository interface {
	CreateBatch(ctx context.Context, seats []*model.Seat) error
	ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Seat, error)
	MaxNumber(ctx context.Context, adminID uuid.UUID) (int, error)
	Count(ctx context.Context, adminID uuid.UUID) (int, error)
	GetByID(ctx context.Context, adminID, seatID uuid.UUID) (*model.Seat, error)
	// Reserve sets the occupant only if the seat is free. It reports whether
	// the seat was taken by this call.
	Reserve(ctx context.Context, seatID, studentID uuid.UUID) (bool, error)
	// Release clears the occupant only if it is studentID.
	Release(ctx context.Context, seatID, studentID uuid.UUID) (bool, error)
	// DeleteFree deletes the seat only if it has no occupant.
	DeleteFree(ctx context.Context, seatID uuid.UUID) (bool, error)
}

type StudentRepository interface {
	Create(ctx context.Context, student *model.Student) error
	GetByID(ctx context.Context, adminID, id uuid.UUID) (*model.Student, error)
	GetByEmail(ctx context.Context, email string) (*model.Student, error)
	ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Student, error)
	Update(ctx context.Context, student *model.Student) error
	SetSeat(ctx context.Context, id uuid.UUID, seatID *uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type PlanRepository interface {
	Create(ctx context.Context, plan *model.SubscriptionPlan) error
	Update(ctx context.Context, plan *model.SubscriptionPlan) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error)
	List(ctx context.Context) ([]*model.SubscriptionPlan, error)
}

type SubscriptionRepository interface {
	CreatePending(ctx context.Context, p *model.PendingSubscription) error
	GetPending(ctx context.Context, providerID string) (*model.PendingSubscription, error)
	ListPendingByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.PendingSubscription, error)
	DeletePending(ctx context.Context, id uuid.UUID) error
	DeletePendingBefore(ctx context.Context, t time.Time) (int64, error)

	Create(ctx context.Context, s *model.Subscription) error
	GetByProviderID(ctx context.Context, providerID string) (*model.Subscription, error)
	UpdateStatus(ctx context.Context, providerID string, status model.SubscriptionStatus) error
	ListLiveByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Subscription, error)
}

// Repos groups every repository bound to the same connection or transaction.
type Repos interface {
	Admins() AdminRepository
	Shifts() ShiftRepository
	Discounts() DiscountRepository
	Enrollments() EnrollmentRepository
	Seats() SeatRepository
	Students() StudentRepository
	Plans() PlanRepository
	Subscriptions() SubscriptionRepository
}

// Store is the storage handle injected into services.
type Store interface {
	Repos
	// InTx runs fn in one transaction. The transaction commits when fn returns
	// nil and rolls back otherwise; a failed rollback is reported wrapped with
	// ErrRollbackFailed.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	Close()
}
