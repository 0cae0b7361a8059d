package model

import (
	"time"

	"github.com/google/uuid"
)

type Student struct {
	ID           uuid.UUID  `json:"id"`
	AdminID      uuid.UUID  `json:"admin_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsVerified   bool       `json:"is_verified"`
	PaymentDone  bool       `json:"payment_done"`
	SeatID       *uuid.UUID `json:"seat_id"` // nil - seat not allocated
	OTP          *string    `json:"-"`
	OTPExpires   *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Filled by services, not stored on the row
	Shifts     []*Shift `json:"shifts,omitempty"`
	MonthlyFee int64    `json:"monthly_fee"`
	Seat       *Seat    `json:"seat,omitempty"`
}

func (s *Student) OTPMatches(code string, now time.Time) bool {
	return otpMatches(s.OTP, s.OTPExpires, code, now)
}

// Enrollment links a student to one shift and carries the monthly fee computed
// for the student's whole shift set.
type Enrollment struct {
	StudentID  uuid.UUID `json:"student_id"`
	ShiftID    uuid.UUID `json:"shift_id"`
	MonthlyFee int64     `json:"monthly_fee"` // in minor units
	CreatedAt  time.Time `json:"created_at"`
}
