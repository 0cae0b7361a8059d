package service

import (
	"context"
	"errors"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/shiftplan"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShiftInput is a full shift configuration request.
type ShiftInput struct {
	NumShifts     int
	HoursPerShift int
	StartTime     string
	Fees          []int64
	Discounts     shiftplan.DiscountRequest
	// IfVersion, when set, must equal the stored configuration version.
	IfVersion *int64
}

type ShiftService struct {
	store storage.Store
	fail  failures
	log   *zap.Logger
}

func NewShiftService(store storage.Store, alerts Alerter, logger *zap.Logger) *ShiftService {
	return &ShiftService{
		store: store,
		fail:  failures{alerts: alerts, logger: logger},
		log:   logger,
	}
}

// plan validates in and builds the rows to write. Nothing is written when it
// fails.
func (s *ShiftService) plan(adminID uuid.UUID, in ShiftInput) ([]*model.Shift, []*model.ShiftDiscount, error) {
	windows, err := shiftplan.Generate(in.NumShifts, in.HoursPerShift, in.StartTime)
	if err != nil {
		return nil, nil, err
	}
	if len(in.Fees) != in.NumShifts {
		return nil, nil, apperr.Invalid("expected %d fees, got %d", in.NumShifts, len(in.Fees))
	}
	for _, fee := range in.Fees {
		if fee < 0 {
			return nil, nil, apperr.Invalid("shift fee cannot be negative")
		}
	}
	table, err := shiftplan.Configure(in.NumShifts, in.Discounts)
	if err != nil {
		return nil, nil, err
	}

	shifts := make([]*model.Shift, len(windows))
	for i, w := range windows {
		shifts[i] = &model.Shift{
			ID:        uuid.New(),
			AdminID:   adminID,
			Number:    w.Number,
			StartTime: w.Start,
			EndTime:   w.End,
			Fee:       in.Fees[i],
		}
	}
	discounts := make([]*model.ShiftDiscount, len(table))
	for i, tier := range table {
		discounts[i] = &model.ShiftDiscount{
			ID:         uuid.New(),
			AdminID:    adminID,
			MinShifts:  tier.MinShifts,
			Percentage: tier.Percentage,
		}
	}
	return shifts, discounts, nil
}

// Configure replaces the admin's shifts and discounts.
func (s *ShiftService) Configure(ctx context.Context, adminID uuid.UUID, in ShiftInput) (*model.ShiftConfig, error) {
	return s.replace(ctx, adminID, in, false)
}

// Update is Configure for an admin that already has shifts.
func (s *ShiftService) Update(ctx context.Context, adminID uuid.UUID, in ShiftInput) (*model.ShiftConfig, error) {
	return s.replace(ctx, adminID, in, true)
}

func (s *ShiftService) replace(ctx context.Context, adminID uuid.UUID, in ShiftInput, mustExist bool) (*model.ShiftConfig, error) {
	shifts, discounts, err := s.plan(adminID, in)
	if err != nil {
		return nil, err
	}

	cfg := &model.ShiftConfig{AdminID: adminID, Shifts: shifts, Discounts: discounts}
	err = s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		version, err := s.lockForWrite(ctx, r, adminID, in.IfVersion)
		if err != nil {
			return err
		}

		current, err := r.Shifts().ListByAdmin(ctx, adminID)
		if err != nil {
			return err
		}
		if mustExist && len(current) == 0 {
			return apperr.NotFound("no shifts found to update")
		}
		if err := ensureUnused(ctx, r, current); err != nil {
			return err
		}

		if _, err := r.Discounts().DeleteByAdmin(ctx, adminID); err != nil {
			return err
		}
		if _, err := r.Shifts().DeleteByAdmin(ctx, adminID); err != nil {
			return err
		}
		if err := r.Shifts().CreateBatch(ctx, shifts); err != nil {
			return err
		}
		if err := r.Discounts().CreateBatch(ctx, discounts); err != nil {
			return err
		}

		cfg.Version, err = r.Admins().BumpConfigVersion(ctx, adminID, version)
		return err
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "configure shifts", zap.String("admin_id", adminID.String()))
	}

	s.log.Info("Shifts configured",
		zap.String("admin_id", adminID.String()),
		zap.Int("shifts", len(shifts)),
		zap.Int("discount_tiers", len(discounts)),
		zap.Int64("version", cfg.Version),
	)

	return cfg, nil
}

// Get returns the admin's shifts ordered by number, discount tiers and version.
func (s *ShiftService) Get(ctx context.Context, adminID uuid.UUID) (*model.ShiftConfig, error) {
	cfg := &model.ShiftConfig{AdminID: adminID}
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		version, err := r.Admins().LockConfig(ctx, adminID, false)
		if err != nil {
			return adminMissing(err)
		}
		cfg.Version = version

		if cfg.Shifts, err = r.Shifts().ListByAdmin(ctx, adminID); err != nil {
			return err
		}
		if len(cfg.Shifts) == 0 {
			return apperr.NotFound("no shifts configured")
		}
		cfg.Discounts, err = r.Discounts().ListByAdmin(ctx, adminID)
		return err
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "get shifts", zap.String("admin_id", adminID.String()))
	}

	if cfg.Discounts == nil {
		cfg.Discounts = []*model.ShiftDiscount{}
	}
	return cfg, nil
}

// DeleteAll removes every shift of the admin and its discount tiers.
func (s *ShiftService) DeleteAll(ctx context.Context, adminID uuid.UUID, ifVersion *int64) error {
	var removed int64
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		version, err := s.lockForWrite(ctx, r, adminID, ifVersion)
		if err != nil {
			return err
		}

		current, err := r.Shifts().ListByAdmin(ctx, adminID)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return apperr.NotFound("no shifts found to delete")
		}
		if err := ensureUnused(ctx, r, current); err != nil {
			return err
		}

		if _, err := r.Discounts().DeleteByAdmin(ctx, adminID); err != nil {
			return err
		}
		if removed, err = r.Shifts().DeleteByAdmin(ctx, adminID); err != nil {
			return err
		}
		_, err = r.Admins().BumpConfigVersion(ctx, adminID, version)
		return err
	})
	if err != nil {
		return s.fail.translate(ctx, err, "delete shifts", zap.String("admin_id", adminID.String()))
	}

	s.log.Info("Shifts deleted",
		zap.String("admin_id", adminID.String()),
		zap.Int64("count", removed),
	)
	return nil
}

// DeleteByNumber removes one shift and prunes discount tiers that no longer fit
// the remaining shift count.
func (s *ShiftService) DeleteByNumber(ctx context.Context, adminID uuid.UUID, number int, ifVersion *int64) error {
	var pruned int64
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		version, err := s.lockForWrite(ctx, r, adminID, ifVersion)
		if err != nil {
			return err
		}

		current, err := r.Shifts().ListByAdmin(ctx, adminID)
		if err != nil {
			return err
		}
		cfg := model.ShiftConfig{Shifts: current}
		target := cfg.ShiftByNumber(number)
		if target == nil {
			return apperr.NotFound("shift %d not found", number)
		}
		// Любая запись студента блокирует весь набор смен.
		if err := ensureUnused(ctx, r, current); err != nil {
			return err
		}

		if err := r.Shifts().Delete(ctx, target.ID); err != nil {
			return err
		}
		if pruned, err = r.Discounts().DeleteAbove(ctx, adminID, len(current)-1); err != nil {
			return err
		}
		_, err = r.Admins().BumpConfigVersion(ctx, adminID, version)
		return err
	})
	if err != nil {
		return s.fail.translate(ctx, err, "delete shift",
			zap.String("admin_id", adminID.String()),
			zap.Int("shift_number", number),
		)
	}

	s.log.Info("Shift deleted",
		zap.String("admin_id", adminID.String()),
		zap.Int("shift_number", number),
		zap.Int64("pruned_discounts", pruned),
	)
	return nil
}

// lockForWrite takes the exclusive configuration lock and checks ifVersion.
func (s *ShiftService) lockForWrite(ctx context.Context, r storage.Repos, adminID uuid.UUID, ifVersion *int64) (int64, error) {
	version, err := r.Admins().LockConfig(ctx, adminID, true)
	if err != nil {
		return 0, adminMissing(err)
	}
	if ifVersion != nil && *ifVersion != version {
		return 0, apperr.Conflict(apperr.ReasonVersionMismatch,
			"shift configuration is at version %d, not %d", version, *ifVersion)
	}
	return version, nil
}

// ensureUnused fails with ShiftsInUse when a student is enrolled in any of shifts.
func ensureUnused(ctx context.Context, r storage.Repos, shifts []*model.Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(shifts))
	for i, sh := range shifts {
		ids[i] = sh.ID
	}
	used, err := r.Enrollments().AnyForShifts(ctx, ids)
	if err != nil {
		return err
	}
	if used {
		return apperr.Conflict(apperr.ReasonShiftsInUse, "cannot edit shifts with assigned students")
	}
	return nil
}

func adminMissing(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("admin not found")
	}
	return err
}

// loadConfig reads the shifts and discount table inside r.
func loadConfig(ctx context.Context, r storage.Repos, adminID uuid.UUID, version int64) (*model.ShiftConfig, error) {
	shifts, err := r.Shifts().ListByAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	discounts, err := r.Discounts().ListByAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	return &model.ShiftConfig{AdminID: adminID, Version: version, Shifts: shifts, Discounts: discounts}, nil
}
