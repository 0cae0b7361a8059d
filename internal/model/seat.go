package model

import (
	"time"

	"github.com/google/uuid"
)

type Seat struct {
	ID         uuid.UUID  `json:"id"`
	AdminID    uuid.UUID  `json:"admin_id"`
	Number     int        `json:"seat_number"`
	ReservedBy *uuid.UUID `json:"reserved_by"` // nil - seat is free
	CreatedAt  time.Time  `json:"created_at"`

	// Occupant's shift numbers, filled for listings
	ShiftNumbers []int `json:"shift_numbers,omitempty"`
}

func (s *Seat) IsFree() bool {
	return s.ReservedBy == nil
}
