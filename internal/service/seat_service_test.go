package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type seatFixture struct {
	store    *memory.Store
	seats    *SeatService
	students *StudentService
	admin    *model.Admin
	alerts   *recordingAlerter
}

func newSeatFixture(t *testing.T, seatCount int) *seatFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	alerts := &recordingAlerter{}
	f := &seatFixture{
		store:    store,
		seats:    NewSeatService(store, alerts, zap.NewNop()),
		students: NewStudentService(store, alerts, zap.NewNop()),
		admin:    seedAdmin(t, store),
		alerts:   alerts,
	}

	_, err := NewShiftService(store, nil, zap.NewNop()).Configure(ctx, f.admin.ID, ShiftInput{
		NumShifts:     2,
		HoursPerShift: 6,
		StartTime:     "07:00",
		Fees:          []int64{800, 900},
	})
	require.NoError(t, err)

	if seatCount > 0 {
		_, err = f.seats.Configure(ctx, f.admin.ID, seatCount)
		require.NoError(t, err)
	}
	return f
}

func (f *seatFixture) addStudent(t *testing.T, name string) *model.Student {
	t.Helper()
	added, err := f.students.Add(context.Background(), f.admin.ID, StudentInput{
		Name:   name,
		Email:  name + "@example.com",
		Shifts: []int{1},
	})
	require.NoError(t, err)
	return added.Student
}

func (f *seatFixture) seatNo(t *testing.T, n int) *model.Seat {
	t.Helper()
	seats, err := f.seats.List(context.Background(), f.admin.ID)
	require.NoError(t, err)
	for _, s := range seats {
		if s.Number == n {
			return s
		}
	}
	t.Fatalf("seat %d not found", n)
	return nil
}

// assertConsistent checks that seat occupants and student seat references agree.
func (f *seatFixture) assertConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	seats, err := f.seats.List(ctx, f.admin.ID)
	require.NoError(t, err)
	students, err := f.students.List(ctx, f.admin.ID)
	require.NoError(t, err)

	holder := map[uuid.UUID]uuid.UUID{}
	for _, s := range seats {
		if s.ReservedBy != nil {
			holder[s.ID] = *s.ReservedBy
		}
	}
	refs := 0
	for _, st := range students {
		if st.SeatID == nil {
			continue
		}
		refs++
		assert.Equal(t, st.ID, holder[*st.SeatID], "seat of %s", st.Name)
	}
	assert.Equal(t, len(holder), refs)
}

func TestSeatConfigureAppends(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 3)

	added, err := f.seats.Configure(ctx, f.admin.ID, 2)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, 4, added[0].Number)
	assert.Equal(t, 5, added[1].Number)

	seats, err := f.seats.List(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 5)
}

func TestSeatConfigureLimits(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 0)

	for _, n := range []int{0, -1, MaxSeatsPerCall + 1} {
		_, err := f.seats.Configure(ctx, f.admin.ID, n)
		assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration, "count %d", n)
	}

	for i := 0; i < MaxSeatsPerAdmin/MaxSeatsPerCall; i++ {
		_, err := f.seats.Configure(ctx, f.admin.ID, MaxSeatsPerCall)
		require.NoError(t, err)
	}
	_, err := f.seats.Configure(ctx, f.admin.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration)
}

func TestSeatAllocateAndMove(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 3)
	st := f.addStudent(t, "ravi")
	one, two := f.seatNo(t, 1), f.seatNo(t, 2)

	_, err := f.seats.Allocate(ctx, f.admin.ID, one.ID, st.ID)
	require.NoError(t, err)

	// Same seat again is a no-op.
	_, err = f.seats.Allocate(ctx, f.admin.ID, one.ID, st.ID)
	require.NoError(t, err)

	_, err = f.seats.Allocate(ctx, f.admin.ID, two.ID, st.ID)
	require.NoError(t, err)

	assert.Nil(t, f.seatNo(t, 1).ReservedBy)
	require.NotNil(t, f.seatNo(t, 2).ReservedBy)
	assert.Equal(t, st.ID, *f.seatNo(t, 2).ReservedBy)
	assert.Equal(t, []int{1}, f.seatNo(t, 2).ShiftNumbers)
	f.assertConsistent(t)
}

func TestSeatAllocateConflicts(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 2)
	a, b := f.addStudent(t, "a"), f.addStudent(t, "b")
	one := f.seatNo(t, 1)

	_, err := f.seats.Allocate(ctx, f.admin.ID, one.ID, a.ID)
	require.NoError(t, err)

	_, err = f.seats.Allocate(ctx, f.admin.ID, one.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrSeatAlreadyReserved)

	_, err = f.seats.Allocate(ctx, f.admin.ID, uuid.New(), b.ID)
	assert.ErrorIs(t, err, apperr.ErrSeatNotFound)

	_, err = f.seats.Allocate(ctx, f.admin.ID, f.seatNo(t, 2).ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	f.assertConsistent(t)
}

func TestSeatOutsideAdminScope(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 1)
	other := newSeatFixture(t, 1)
	st := f.addStudent(t, "scoped")

	_, err := f.seats.Allocate(ctx, f.admin.ID, other.seatNo(t, 1).ID, st.ID)
	assert.ErrorIs(t, err, apperr.ErrSeatNotFound)
}

func TestSeatConcurrentAllocation(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 1)
	seat := f.seatNo(t, 1)

	const contenders = 8
	students := make([]*model.Student, contenders)
	for i := range students {
		students[i] = f.addStudent(t, uuid.NewString()[:8])
	}

	results := make([]error, contenders)
	var g errgroup.Group
	for i := range students {
		g.Go(func() error {
			_, results[i] = f.seats.Allocate(ctx, f.admin.ID, seat.ID, students[i].ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	won := 0
	for _, err := range results {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrSeatAlreadyReserved)
	}
	assert.Equal(t, 1, won)
	f.assertConsistent(t)
}

func TestSeatDeallocate(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 1)
	st := f.addStudent(t, "dev")

	assert.ErrorIs(t, f.seats.Deallocate(ctx, f.admin.ID, st.ID), apperr.ErrNoSeatAllocated)

	_, err := f.seats.Allocate(ctx, f.admin.ID, f.seatNo(t, 1).ID, st.ID)
	require.NoError(t, err)
	require.NoError(t, f.seats.Deallocate(ctx, f.admin.ID, st.ID))

	assert.True(t, f.seatNo(t, 1).IsFree())
	f.assertConsistent(t)
}

func TestSeatRelease(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 1)
	st := f.addStudent(t, "mira")
	seat := f.seatNo(t, 1)

	assert.ErrorIs(t, f.seats.Release(ctx, f.admin.ID, seat.ID), apperr.ErrSeatNotReserved)

	_, err := f.seats.Allocate(ctx, f.admin.ID, seat.ID, st.ID)
	require.NoError(t, err)
	require.NoError(t, f.seats.Release(ctx, f.admin.ID, seat.ID))

	got, err := f.students.Get(ctx, f.admin.ID, st.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SeatID)
	f.assertConsistent(t)
}

func TestSeatDelete(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 2)
	st := f.addStudent(t, "kai")
	one, two := f.seatNo(t, 1), f.seatNo(t, 2)

	_, err := f.seats.Allocate(ctx, f.admin.ID, one.ID, st.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.seats.Delete(ctx, f.admin.ID, one.ID), apperr.ErrSeatOccupied)
	assert.ErrorIs(t, f.seats.Delete(ctx, f.admin.ID, uuid.New()), apperr.ErrSeatNotFound)
	require.NoError(t, f.seats.Delete(ctx, f.admin.ID, two.ID))

	seats, err := f.seats.List(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 1)
}

func TestSeatAvailable(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 3)
	st := f.addStudent(t, "lee")
	_, err := f.seats.Allocate(ctx, f.admin.ID, f.seatNo(t, 2).ID, st.ID)
	require.NoError(t, err)

	free, err := f.seats.Available(ctx, f.admin.ID, nil)
	require.NoError(t, err)
	assert.Len(t, free, 2)

	withOwn, err := f.seats.Available(ctx, f.admin.ID, &st.ID)
	require.NoError(t, err)
	assert.Len(t, withOwn, 3)
}

func TestSeatAllocateFailedRollbackNeedsReconciliation(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 1)
	st := f.addStudent(t, "zed")

	f.store.FailOn("students.SetSeat", errors.New("connection reset"))
	f.store.FailRollback()

	_, err := f.seats.Allocate(ctx, f.admin.ID, f.seatNo(t, 1).ID, st.ID)
	assert.True(t, apperr.RequiresReconciliation(err))
	assert.Len(t, f.alerts.Texts(), 1)
}

func TestSeatAllocateRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newSeatFixture(t, 1)
	st := f.addStudent(t, "uma")

	f.store.FailOn("students.SetSeat", errors.New("connection reset"))
	_, err := f.seats.Allocate(ctx, f.admin.ID, f.seatNo(t, 1).ID, st.ID)
	assert.ErrorIs(t, err, apperr.ErrUpstreamFailure)
	assert.False(t, apperr.RequiresReconciliation(err))

	assert.True(t, f.seatNo(t, 1).IsFree())
	f.assertConsistent(t)
}
