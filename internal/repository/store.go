package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/studyroom/internal/repository/base"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// repos binds every repository to one querier (pool or transaction).
type repos struct {
	admins        *AdminRepository
	shifts        *ShiftRepository
	discounts     *DiscountRepository
	enrollments   *EnrollmentRepository
	seats         *SeatRepository
	students      *StudentRepository
	plans         *PlanRepository
	subscriptions *SubscriptionRepository
}

func newRepos(db base.Querier) *repos {
	return &repos{
		admins:        NewAdminRepository(db),
		shifts:        NewShiftRepository(db),
		discounts:     NewDiscountRepository(db),
		enrollments:   NewEnrollmentRepository(db),
		seats:         NewSeatRepository(db),
		students:      NewStudentRepository(db),
		plans:         NewPlanRepository(db),
		subscriptions: NewSubscriptionRepository(db),
	}
}

func (r *repos) Admins() storage.AdminRepository               { return r.admins }
func (r *repos) Shifts() storage.ShiftRepository               { return r.shifts }
func (r *repos) Discounts() storage.DiscountRepository         { return r.discounts }
func (r *repos) Enrollments() storage.EnrollmentRepository     { return r.enrollments }
func (r *repos) Seats() storage.SeatRepository                 { return r.seats }
func (r *repos) Students() storage.StudentRepository           { return r.students }
func (r *repos) Plans() storage.PlanRepository                 { return r.plans }
func (r *repos) Subscriptions() storage.SubscriptionRepository { return r.subscriptions }

// Store реализует storage.Store поверх пула pgx
type Store struct {
	*repos
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// NewStore opens a pool for dsn and checks connectivity.
func NewStore(ctx context.Context, dsn string, timeout time.Duration, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewStoreFromPool(pool, timeout, logger), nil
}

func NewStoreFromPool(pool *pgxpool.Pool, timeout time.Duration, logger *zap.Logger) *Store {
	return &Store{
		repos:   newRepos(pool),
		pool:    pool,
		timeout: timeout,
		logger:  logger,
	}
}

// Pool returns the underlying pool, used by the migrator.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// InTx выполняет fn в одной транзакции с ограничением по времени
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r storage.Repos) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, newRepos(tx)); err != nil {
		// The request context may already be done; rollback must still reach the server.
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("Rollback failed",
				zap.Error(rbErr),
				zap.NamedError("cause", err),
			)
			return fmt.Errorf("%w: %v (cause: %w)", storage.ErrRollbackFailed, rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

var _ storage.Store = (*Store)(nil)
