package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesCodeAndReason(t *testing.T) {
	err := Conflict(ReasonShiftsInUse, "cannot update shifts with assigned students")

	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(err, ErrShiftsInUse))
	assert.False(t, errors.Is(err, ErrSeatAlreadyReserved))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestErrorIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("allocate seat: %w", Conflict(ReasonSeatAlreadyReserved, "seat is already allocated"))

	assert.True(t, errors.Is(err, ErrSeatAlreadyReserved))

	e, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, CodeConflict, e.Code)
}

func TestUpstreamReasons(t *testing.T) {
	cause := errors.New("connection reset")

	clean := Upstream(cause, true, "allocate seat")
	assert.True(t, errors.Is(clean, ErrUpstreamFailure))
	assert.False(t, RequiresReconciliation(clean))
	assert.ErrorIs(t, clean, cause)

	dirty := Upstream(cause, false, "create subscription")
	assert.True(t, RequiresReconciliation(dirty))
	assert.Contains(t, dirty.Error(), "RECONCILIATION_REQUIRED")
}
