package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/auth"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/shiftplan"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StudentInput describes a student added by an admin.
type StudentInput struct {
	Name     string
	Email    string
	Password string // generated when empty
	Shifts   []int
	SeatID   *uuid.UUID
}

// EnrollmentInput replaces a student's shift set. SeatID moves the student to
// another seat, ClearSeat frees the current one, neither keeps it.
type EnrollmentInput struct {
	Shifts    []int
	SeatID    *uuid.UUID
	ClearSeat bool
}

// AddedStudent is returned once on creation; TempPassword is empty when the
// admin supplied a password.
type AddedStudent struct {
	Student      *model.Student
	TempPassword string
}

type StudentService struct {
	store storage.Store
	fail  failures
	log   *zap.Logger
}

func NewStudentService(store storage.Store, alerts Alerter, logger *zap.Logger) *StudentService {
	return &StudentService{
		store: store,
		fail:  failures{alerts: alerts, logger: logger},
		log:   logger,
	}
}

// Add creates a verified, unpaid student with its shift set, fee and optional seat.
func (s *StudentService) Add(ctx context.Context, adminID uuid.UUID, in StudentInput) (*AddedStudent, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return nil, apperr.Invalid("student name is required")
	}
	if email == "" {
		return nil, apperr.Invalid("student email is required")
	}
	if err := checkShiftNumbers(in.Shifts); err != nil {
		return nil, err
	}

	out := &AddedStudent{}
	password := in.Password
	if password == "" {
		generated, err := auth.GeneratePassword()
		if err != nil {
			return nil, apperr.Upstream(err, true, "generate password")
		}
		password, out.TempPassword = generated, generated
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Upstream(err, true, "hash password")
	}

	student := &model.Student{
		ID:           uuid.New(),
		AdminID:      adminID,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsVerified:   true,
	}

	err = s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		version, err := r.Admins().LockConfig(ctx, adminID, false)
		if err != nil {
			return adminMissing(err)
		}
		if err := emailUnused(ctx, r, email); err != nil {
			return err
		}

		cfg, err := loadConfig(ctx, r, adminID, version)
		if err != nil {
			return err
		}
		shifts, fee, err := priceShifts(cfg, in.Shifts)
		if err != nil {
			return err
		}

		if err := r.Students().Create(ctx, student); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return apperr.Conflict(apperr.ReasonEmailInUse, "email already in use")
			}
			return err
		}
		if err := r.Enrollments().Replace(ctx, student.ID, enrollmentRows(student.ID, shifts, fee)); err != nil {
			return err
		}
		student.Shifts, student.MonthlyFee = shifts, fee

		if in.SeatID != nil {
			seat, err := assignSeat(ctx, r, adminID, *in.SeatID, student)
			if err != nil {
				return err
			}
			student.Seat = seat
		}
		return nil
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "add student",
			zap.String("admin_id", adminID.String()),
			zap.String("email", email),
		)
	}

	s.log.Info("Student added",
		zap.String("admin_id", adminID.String()),
		zap.String("student_id", student.ID.String()),
		zap.Ints("shifts", in.Shifts),
		zap.Int64("monthly_fee", student.MonthlyFee),
	)

	out.Student = student
	return out, nil
}

// UpdateEnrollment replaces the student's shifts and fee and moves, keeps or
// clears the seat, all in one transaction.
func (s *StudentService) UpdateEnrollment(ctx context.Context, adminID, studentID uuid.UUID, in EnrollmentInput) (*model.Student, error) {
	if err := checkShiftNumbers(in.Shifts); err != nil {
		return nil, err
	}
	if in.ClearSeat && in.SeatID != nil {
		return nil, apperr.Invalid("seat cannot be both set and cleared")
	}

	var student *model.Student
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		version, err := r.Admins().LockConfig(ctx, adminID, false)
		if err != nil {
			return adminMissing(err)
		}
		if student, err = r.Students().GetByID(ctx, adminID, studentID); err != nil {
			return err
		}
		if student == nil {
			return apperr.NotFound("student not found")
		}

		cfg, err := loadConfig(ctx, r, adminID, version)
		if err != nil {
			return err
		}
		shifts, fee, err := priceShifts(cfg, in.Shifts)
		if err != nil {
			return err
		}
		if err := r.Enrollments().Replace(ctx, student.ID, enrollmentRows(student.ID, shifts, fee)); err != nil {
			return err
		}
		student.Shifts, student.MonthlyFee = shifts, fee

		switch {
		case in.SeatID != nil:
			seat, err := assignSeat(ctx, r, adminID, *in.SeatID, student)
			if err != nil {
				return err
			}
			student.Seat = seat
		case in.ClearSeat:
			return vacateSeat(ctx, r, student)
		case student.SeatID != nil:
			student.Seat, err = r.Seats().GetByID(ctx, adminID, *student.SeatID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "update enrollment",
			zap.String("admin_id", adminID.String()),
			zap.String("student_id", studentID.String()),
		)
	}

	s.log.Info("Enrollment updated",
		zap.String("admin_id", adminID.String()),
		zap.String("student_id", studentID.String()),
		zap.Ints("shifts", in.Shifts),
		zap.Int64("monthly_fee", student.MonthlyFee),
	)
	return student, nil
}

// Remove releases the student's seat, drops its shift links and deletes it.
func (s *StudentService) Remove(ctx context.Context, adminID, studentID uuid.UUID) error {
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		student, err := r.Students().GetByID(ctx, adminID, studentID)
		if err != nil {
			return err
		}
		if student == nil {
			return apperr.NotFound("student not found")
		}
		if err := vacateSeat(ctx, r, student); err != nil {
			return err
		}
		if err := r.Enrollments().DeleteByStudent(ctx, studentID); err != nil {
			return err
		}
		return r.Students().Delete(ctx, studentID)
	})
	if err != nil {
		return s.fail.translate(ctx, err, "remove student",
			zap.String("admin_id", adminID.String()),
			zap.String("student_id", studentID.String()),
		)
	}

	s.log.Info("Student removed",
		zap.String("admin_id", adminID.String()),
		zap.String("student_id", studentID.String()),
	)
	return nil
}

func (s *StudentService) SetPayment(ctx context.Context, adminID, studentID uuid.UUID, paid bool) (*model.Student, error) {
	var student *model.Student
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		var err error
		if student, err = r.Students().GetByID(ctx, adminID, studentID); err != nil {
			return err
		}
		if student == nil {
			return apperr.NotFound("student not found")
		}
		student.PaymentDone = paid
		return r.Students().Update(ctx, student)
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "set payment status",
			zap.String("admin_id", adminID.String()),
			zap.String("student_id", studentID.String()),
		)
	}

	s.log.Info("Payment status updated",
		zap.String("student_id", studentID.String()),
		zap.Bool("payment_done", paid),
	)
	return student, nil
}

// Get returns one student with shifts, fee and seat.
func (s *StudentService) Get(ctx context.Context, adminID, studentID uuid.UUID) (*model.Student, error) {
	student, err := s.store.Students().GetByID(ctx, adminID, studentID)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "get student", zap.String("student_id", studentID.String()))
	}
	if student == nil {
		return nil, apperr.NotFound("student not found")
	}
	if err := s.hydrate(ctx, []*model.Student{student}); err != nil {
		return nil, s.fail.translate(ctx, err, "get student", zap.String("student_id", studentID.String()))
	}
	return student, nil
}

func (s *StudentService) List(ctx context.Context, adminID uuid.UUID) ([]*model.Student, error) {
	students, err := s.store.Students().ListByAdmin(ctx, adminID)
	if err == nil {
		err = s.hydrate(ctx, students)
	}
	if err != nil {
		return nil, s.fail.translate(ctx, err, "list students", zap.String("admin_id", adminID.String()))
	}
	if students == nil {
		students = []*model.Student{}
	}
	return students, nil
}

// Profile is the student-facing view of the caller's own record.
func (s *StudentService) Profile(ctx context.Context, id auth.Identity) (*model.Student, error) {
	student, err := s.store.Students().GetByEmail(ctx, id.Email)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "student profile", zap.String("student_id", id.UserID.String()))
	}
	if student == nil || student.ID != id.UserID {
		return nil, apperr.NotFound("student not found")
	}
	if err := s.hydrate(ctx, []*model.Student{student}); err != nil {
		return nil, s.fail.translate(ctx, err, "student profile", zap.String("student_id", id.UserID.String()))
	}
	return student, nil
}

// hydrate fills shifts, fee and seat of students that belong to one admin.
func (s *StudentService) hydrate(ctx context.Context, students []*model.Student) error {
	if len(students) == 0 {
		return nil
	}
	adminID := students[0].AdminID

	shifts, err := s.store.Shifts().ListByAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*model.Shift, len(shifts))
	for _, sh := range shifts {
		byID[sh.ID] = sh
	}

	for _, st := range students {
		rows, err := s.store.Enrollments().ListByStudent(ctx, st.ID)
		if err != nil {
			return err
		}
		st.Shifts = make([]*model.Shift, 0, len(rows))
		for _, row := range rows {
			if sh, ok := byID[row.ShiftID]; ok {
				st.Shifts = append(st.Shifts, sh)
			}
			st.MonthlyFee = row.MonthlyFee
		}
		if st.SeatID != nil {
			if st.Seat, err = s.store.Seats().GetByID(ctx, adminID, *st.SeatID); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkShiftNumbers(numbers []int) error {
	if len(numbers) == 0 {
		return apperr.Invalid("at least one shift must be selected")
	}
	seen := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		if seen[n] {
			return apperr.Invalid("shift %d selected twice", n)
		}
		seen[n] = true
	}
	return nil
}

// priceShifts resolves shift numbers against cfg and computes the monthly fee.
func priceShifts(cfg *model.ShiftConfig, numbers []int) ([]*model.Shift, int64, error) {
	shifts := make([]*model.Shift, 0, len(numbers))
	fees := make([]int64, 0, len(numbers))
	for _, n := range numbers {
		sh := cfg.ShiftByNumber(n)
		if sh == nil {
			return nil, 0, apperr.Invalid("shift %d is not configured", n)
		}
		shifts = append(shifts, sh)
		fees = append(fees, sh.Fee)
	}
	fee, err := shiftplan.MonthlyFee(fees, cfg.Table())
	if err != nil {
		return nil, 0, err
	}
	return shifts, fee, nil
}

func enrollmentRows(studentID uuid.UUID, shifts []*model.Shift, fee int64) []*model.Enrollment {
	rows := make([]*model.Enrollment, len(shifts))
	for i, sh := range shifts {
		rows[i] = &model.Enrollment{StudentID: studentID, ShiftID: sh.ID, MonthlyFee: fee}
	}
	return rows
}

// emailUnused claims email for the transaction and checks both admins and
// students.
func emailUnused(ctx context.Context, r storage.Repos, email string) error {
	if err := r.Admins().ClaimEmail(ctx, email); err != nil {
		return err
	}
	admin, err := r.Admins().GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if admin != nil {
		return apperr.Conflict(apperr.ReasonEmailInUse, "email already in use")
	}
	student, err := r.Students().GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if student != nil {
		return apperr.Conflict(apperr.ReasonEmailInUse, "email already in use")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
