package service

import (
	"context"
	"errors"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxSeatsPerCall  = 100
	MaxSeatsPerAdmin = 500
)

type SeatService struct {
	store storage.Store
	fail  failures
	log   *zap.Logger
}

func NewSeatService(store storage.Store, alerts Alerter, logger *zap.Logger) *SeatService {
	return &SeatService{
		store: store,
		fail:  failures{alerts: alerts, logger: logger},
		log:   logger,
	}
}

// Configure appends count seats numbered after the admin's current highest.
func (s *SeatService) Configure(ctx context.Context, adminID uuid.UUID, count int) ([]*model.Seat, error) {
	if count < 1 || count > MaxSeatsPerCall {
		return nil, apperr.Invalid("seat count must be between 1 and %d", MaxSeatsPerCall)
	}

	var seats []*model.Seat
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		// Serialises concurrent seat growth for one admin.
		if _, err := r.Admins().LockConfig(ctx, adminID, true); err != nil {
			return adminMissing(err)
		}

		existing, err := r.Seats().Count(ctx, adminID)
		if err != nil {
			return err
		}
		if existing+count > MaxSeatsPerAdmin {
			return apperr.Invalid("an admin can have at most %d seats, %d already configured", MaxSeatsPerAdmin, existing)
		}
		last, err := r.Seats().MaxNumber(ctx, adminID)
		if err != nil {
			return err
		}

		seats = make([]*model.Seat, count)
		for i := range seats {
			seats[i] = &model.Seat{ID: uuid.New(), AdminID: adminID, Number: last + i + 1}
		}
		return r.Seats().CreateBatch(ctx, seats)
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "configure seats", zap.String("admin_id", adminID.String()))
	}

	s.log.Info("Seats configured",
		zap.String("admin_id", adminID.String()),
		zap.Int("added", count),
		zap.Int("first_number", seats[0].Number),
	)
	return seats, nil
}

// List returns every seat with its occupant and the occupant's shift numbers.
func (s *SeatService) List(ctx context.Context, adminID uuid.UUID) ([]*model.Seat, error) {
	seats, err := s.store.Seats().ListByAdmin(ctx, adminID)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "list seats", zap.String("admin_id", adminID.String()))
	}
	if seats == nil {
		seats = []*model.Seat{}
	}
	return seats, nil
}

// Available returns the free seats, plus studentID's current seat when given.
func (s *SeatService) Available(ctx context.Context, adminID uuid.UUID, studentID *uuid.UUID) ([]*model.Seat, error) {
	seats, err := s.List(ctx, adminID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Seat, 0, len(seats))
	for _, seat := range seats {
		if seat.IsFree() || (studentID != nil && *seat.ReservedBy == *studentID) {
			out = append(out, seat)
		}
	}
	return out, nil
}

// Allocate gives seatID to studentID, releasing the student's previous seat.
func (s *SeatService) Allocate(ctx context.Context, adminID, seatID, studentID uuid.UUID) (*model.Seat, error) {
	var seat *model.Seat
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		student, err := r.Students().GetByID(ctx, adminID, studentID)
		if err != nil {
			return err
		}
		if student == nil {
			return apperr.NotFound("student not found")
		}
		seat, err = assignSeat(ctx, r, adminID, seatID, student)
		return err
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "allocate seat",
			zap.String("admin_id", adminID.String()),
			zap.String("seat_id", seatID.String()),
			zap.String("student_id", studentID.String()),
		)
	}

	s.log.Info("Seat allocated",
		zap.String("admin_id", adminID.String()),
		zap.Int("seat_number", seat.Number),
		zap.String("student_id", studentID.String()),
	)
	return seat, nil
}

// Deallocate frees the seat held by studentID.
func (s *SeatService) Deallocate(ctx context.Context, adminID, studentID uuid.UUID) error {
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		student, err := r.Students().GetByID(ctx, adminID, studentID)
		if err != nil {
			return err
		}
		if student == nil {
			return apperr.NotFound("student not found")
		}
		if student.SeatID == nil {
			return apperr.Conflict(apperr.ReasonNoSeatAllocated, "student has no seat allocated")
		}
		return vacateSeat(ctx, r, student)
	})
	if err != nil {
		return s.fail.translate(ctx, err, "deallocate seat",
			zap.String("admin_id", adminID.String()),
			zap.String("student_id", studentID.String()),
		)
	}

	s.log.Info("Seat deallocated",
		zap.String("admin_id", adminID.String()),
		zap.String("student_id", studentID.String()),
	)
	return nil
}

// Release removes the reservation on seatID, whoever holds it.
func (s *SeatService) Release(ctx context.Context, adminID, seatID uuid.UUID) error {
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		seat, err := r.Seats().GetByID(ctx, adminID, seatID)
		if err != nil {
			return err
		}
		if seat == nil {
			return apperr.New(apperr.CodeNotFound, apperr.ReasonSeatNotFound, "seat not found")
		}
		if seat.IsFree() {
			return apperr.Conflict(apperr.ReasonSeatNotReserved, "seat is not reserved")
		}

		occupant := *seat.ReservedBy
		released, err := r.Seats().Release(ctx, seatID, occupant)
		if err != nil {
			return err
		}
		if !released {
			return apperr.Conflict(apperr.ReasonSeatNotReserved, "seat is not reserved")
		}
		return r.Students().SetSeat(ctx, occupant, nil)
	})
	if err != nil {
		return s.fail.translate(ctx, err, "release seat",
			zap.String("admin_id", adminID.String()),
			zap.String("seat_id", seatID.String()),
		)
	}

	s.log.Info("Seat released",
		zap.String("admin_id", adminID.String()),
		zap.String("seat_id", seatID.String()),
	)
	return nil
}

// Delete removes an unoccupied seat.
func (s *SeatService) Delete(ctx context.Context, adminID, seatID uuid.UUID) error {
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		seat, err := r.Seats().GetByID(ctx, adminID, seatID)
		if err != nil {
			return err
		}
		if seat == nil {
			return apperr.New(apperr.CodeNotFound, apperr.ReasonSeatNotFound, "seat not found")
		}
		if !seat.IsFree() {
			return apperr.Conflict(apperr.ReasonSeatOccupied, "cannot delete a reserved seat")
		}

		deleted, err := r.Seats().DeleteFree(ctx, seatID)
		if err != nil {
			return err
		}
		if !deleted {
			return apperr.Conflict(apperr.ReasonSeatOccupied, "cannot delete a reserved seat")
		}
		return nil
	})
	if err != nil {
		return s.fail.translate(ctx, err, "delete seat",
			zap.String("admin_id", adminID.String()),
			zap.String("seat_id", seatID.String()),
		)
	}

	s.log.Info("Seat deleted",
		zap.String("admin_id", adminID.String()),
		zap.String("seat_id", seatID.String()),
	)
	return nil
}

// assignSeat reserves seatID for student inside r, moving the student off any
// other seat. Holding seatID already is a no-op.
func assignSeat(ctx context.Context, r storage.Repos, adminID, seatID uuid.UUID, student *model.Student) (*model.Seat, error) {
	seat, err := r.Seats().GetByID(ctx, adminID, seatID)
	if err != nil {
		return nil, err
	}
	if seat == nil {
		return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSeatNotFound, "seat not found")
	}

	if seat.ReservedBy != nil {
		if *seat.ReservedBy == student.ID {
			return seat, nil
		}
		return nil, apperr.Conflict(apperr.ReasonSeatAlreadyReserved, "seat %d is already allocated", seat.Number)
	}

	if student.SeatID != nil && *student.SeatID != seatID {
		if _, err := r.Seats().Release(ctx, *student.SeatID, student.ID); err != nil {
			return nil, err
		}
	}

	reserved, err := r.Seats().Reserve(ctx, seatID, student.ID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, apperr.Conflict(apperr.ReasonSeatAlreadyReserved, "student already holds a seat")
		}
		return nil, err
	}
	if !reserved {
		return nil, apperr.Conflict(apperr.ReasonSeatAlreadyReserved, "seat %d is already allocated", seat.Number)
	}

	if err := r.Students().SetSeat(ctx, student.ID, &seatID); err != nil {
		return nil, err
	}

	student.SeatID = &seatID
	seat.ReservedBy = &student.ID
	return seat, nil
}

// vacateSeat clears both sides of the student's seat reservation.
func vacateSeat(ctx context.Context, r storage.Repos, student *model.Student) error {
	if student.SeatID == nil {
		return nil
	}
	if _, err := r.Seats().Release(ctx, *student.SeatID, student.ID); err != nil {
		return err
	}
	if err := r.Students().SetSeat(ctx, student.ID, nil); err != nil {
		return err
	}
	student.SeatID = nil
	return nil
}
