package service

import (
	"context"
	"testing"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/auth"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/shiftplan"
	"github.com/Freeeeeet/studyroom/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type studentFixture struct {
	store    *memory.Store
	students *StudentService
	seats    *SeatService
	admin    *model.Admin
}

// newStudentFixture configures three shifts (1000, 1200, 1500) with 10% off
// two shifts and 20% off all three, plus two seats.
func newStudentFixture(t *testing.T) *studentFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	f := &studentFixture{
		store:    store,
		students: NewStudentService(store, nil, zap.NewNop()),
		seats:    NewSeatService(store, nil, zap.NewNop()),
		admin:    seedAdmin(t, store),
	}
	_, err := NewShiftService(store, nil, zap.NewNop()).Configure(ctx, f.admin.ID, threeShifts())
	require.NoError(t, err)
	_, err = f.seats.Configure(ctx, f.admin.ID, 2)
	require.NoError(t, err)
	return f
}

func (f *studentFixture) seat(t *testing.T, n int) *model.Seat {
	t.Helper()
	seats, err := f.seats.List(context.Background(), f.admin.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(seats), n)
	return seats[n-1]
}

func TestStudentAddComputesFee(t *testing.T) {
	tests := []struct {
		name   string
		shifts []int
		fee    int64
	}{
		{"single shift, no tier", []int{3}, 1500},
		{"two shifts, ten percent", []int{1, 2}, 1980},
		{"all shifts, twenty percent", []int{1, 2, 3}, 2960},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStudentFixture(t)
			added, err := f.students.Add(context.Background(), f.admin.ID, StudentInput{
				Name:   "Nia",
				Email:  "nia@example.com",
				Shifts: tt.shifts,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.fee, added.Student.MonthlyFee)

			got, err := f.students.Get(context.Background(), f.admin.ID, added.Student.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.fee, got.MonthlyFee)
			assert.Len(t, got.Shifts, len(tt.shifts))
		})
	}
}

func TestStudentAddGeneratesPassword(t *testing.T) {
	ctx := context.Background()
	f := newStudentFixture(t)

	added, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "Omar", Email: "Omar@Example.com", Shifts: []int{1}})
	require.NoError(t, err)
	require.NotEmpty(t, added.TempPassword)
	assert.Equal(t, "omar@example.com", added.Student.Email)
	assert.True(t, added.Student.IsVerified)
	assert.False(t, added.Student.PaymentDone)
	assert.True(t, auth.CheckPassword(added.Student.PasswordHash, added.TempPassword))

	given, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "Pia", Email: "pia@example.com", Password: "secret99", Shifts: []int{1}})
	require.NoError(t, err)
	assert.Empty(t, given.TempPassword)
}

func TestStudentAddRejects(t *testing.T) {
	ctx := context.Background()
	f := newStudentFixture(t)
	_, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "Taken", Email: "taken@example.com", Shifts: []int{1}})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   StudentInput
		want error
	}{
		{"no shifts", StudentInput{Name: "x", Email: "x@example.com"}, apperr.ErrInvalidConfiguration},
		{"duplicate shift", StudentInput{Name: "x", Email: "x@example.com", Shifts: []int{1, 1}}, apperr.ErrInvalidConfiguration},
		{"unknown shift", StudentInput{Name: "x", Email: "x@example.com", Shifts: []int{4}}, apperr.ErrInvalidConfiguration},
		{"student email", StudentInput{Name: "x", Email: "TAKEN@example.com", Shifts: []int{1}}, apperr.ErrEmailInUse},
		{"admin email", StudentInput{Name: "x", Email: f.admin.Email, Shifts: []int{1}}, apperr.ErrEmailInUse},
		{"missing name", StudentInput{Email: "x@example.com", Shifts: []int{1}}, apperr.ErrInvalidConfiguration},
		{"unknown seat", StudentInput{Name: "x", Email: "x@example.com", Shifts: []int{1}, SeatID: ptr(uuid.New())}, apperr.ErrSeatNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.students.Add(ctx, f.admin.ID, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	list, err := f.students.List(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStudentAddWithSeat(t *testing.T) {
	ctx := context.Background()
	f := newStudentFixture(t)
	seat := f.seat(t, 1)

	added, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "Q", Email: "q@example.com", Shifts: []int{1}, SeatID: &seat.ID})
	require.NoError(t, err)
	require.NotNil(t, added.Student.SeatID)
	assert.Equal(t, seat.ID, *added.Student.SeatID)

	_, err = f.students.Add(ctx, f.admin.ID, StudentInput{Name: "R", Email: "r@example.com", Shifts: []int{1}, SeatID: &seat.ID})
	assert.ErrorIs(t, err, apperr.ErrSeatAlreadyReserved)

	// The failed add left nothing behind.
	list, err := f.students.List(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStudentUpdateEnrollmentRecomputesFee(t *testing.T) {
	ctx := context.Background()
	f := newStudentFixture(t)
	added, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "S", Email: "s@example.com", Shifts: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), added.Student.MonthlyFee)

	seat := f.seat(t, 2)
	got, err := f.students.UpdateEnrollment(ctx, f.admin.ID, added.Student.ID, EnrollmentInput{Shifts: []int{2, 3}, SeatID: &seat.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2430), got.MonthlyFee)
	require.NotNil(t, got.SeatID)

	got, err = f.students.Get(ctx, f.admin.ID, added.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2430), got.MonthlyFee)
	require.NotNil(t, got.Seat)
	assert.Equal(t, 2, got.Seat.Number)

	got, err = f.students.UpdateEnrollment(ctx, f.admin.ID, added.Student.ID, EnrollmentInput{Shifts: []int{3}, ClearSeat: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.MonthlyFee)
	assert.Nil(t, got.SeatID)
	assert.True(t, f.seat(t, 2).IsFree())
}

func TestStudentUpdateEnrollmentIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newStudentFixture(t)
	seat := f.seat(t, 1)
	holder, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "H", Email: "h@example.com", Shifts: []int{1}, SeatID: &seat.ID})
	require.NoError(t, err)
	mover, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "M", Email: "m@example.com", Shifts: []int{1}})
	require.NoError(t, err)

	_, err = f.students.UpdateEnrollment(ctx, f.admin.ID, mover.Student.ID, EnrollmentInput{Shifts: []int{1, 2, 3}, SeatID: &seat.ID})
	assert.ErrorIs(t, err, apperr.ErrSeatAlreadyReserved)

	got, err := f.students.Get(ctx, f.admin.ID, mover.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.MonthlyFee)
	assert.Len(t, got.Shifts, 1)
	assert.Equal(t, holder.Student.ID, *f.seat(t, 1).ReservedBy)
}

func TestStudentRemoveFreesSeat(t *testing.T) {
	ctx := context.Background()
	f := newStudentFixture(t)
	seat := f.seat(t, 1)
	added, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "T", Email: "t@example.com", Shifts: []int{1, 2}, SeatID: &seat.ID})
	require.NoError(t, err)

	require.NoError(t, f.students.Remove(ctx, f.admin.ID, added.Student.ID))
	assert.True(t, f.seat(t, 1).IsFree())

	_, err = f.students.Get(ctx, f.admin.ID, added.Student.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, f.students.Remove(ctx, f.admin.ID, added.Student.ID), apperr.ErrNotFound)

	// With nobody enrolled the shifts can be edited again.
	_, err = NewShiftService(f.store, nil, zap.NewNop()).Update(ctx, f.admin.ID, threeShifts())
	require.NoError(t, err)
}

func TestStudentSetPaymentAndProfile(t *testing.T) {
	ctx := context.Background()
	f := newStudentFixture(t)
	added, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "U", Email: "u@example.com", Shifts: []int{2}})
	require.NoError(t, err)

	got, err := f.students.SetPayment(ctx, f.admin.ID, added.Student.ID, true)
	require.NoError(t, err)
	assert.True(t, got.PaymentDone)

	me, err := f.students.Profile(ctx, auth.Identity{UserID: added.Student.ID, Email: "u@example.com", Role: auth.RoleStudent})
	require.NoError(t, err)
	assert.True(t, me.PaymentDone)
	assert.Equal(t, int64(1200), me.MonthlyFee)

	_, err = f.students.Profile(ctx, auth.Identity{UserID: uuid.New(), Email: "u@example.com", Role: auth.RoleStudent})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStudentsScopedToAdmin(t *testing.T) {
	ctx := context.Background()
	f := newStudentFixture(t)
	added, err := f.students.Add(ctx, f.admin.ID, StudentInput{Name: "V", Email: "v@example.com", Shifts: []int{1}})
	require.NoError(t, err)

	other := seedAdmin(t, f.store)
	_, err = f.students.Get(ctx, other.ID, added.Student.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.students.SetPayment(ctx, other.ID, added.Student.ID, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStudentFeeUsesCurrentDiscounts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	admin := seedAdmin(t, store)
	_, err := NewShiftService(store, nil, zap.NewNop()).Configure(ctx, admin.ID, ShiftInput{
		NumShifts:     2,
		HoursPerShift: 5,
		StartTime:     "06:00",
		Fees:          []int64{111, 222},
		Discounts:     shiftplan.DiscountRequest{TwoShifts: intp(15)},
	})
	require.NoError(t, err)

	added, err := NewStudentService(store, nil, zap.NewNop()).Add(ctx, admin.ID, StudentInput{Name: "W", Email: "w@example.com", Shifts: []int{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(283), added.Student.MonthlyFee)
}

func ptr[T any](v T) *T { return &v }
