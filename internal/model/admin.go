package model

import (
	"time"

	"github.com/google/uuid"
)

type Admin struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	Name               string     `json:"name"`
	BusinessName       string     `json:"business_name"`
	MobileNo           string     `json:"mobile_no"`
	IsVerified         bool       `json:"is_verified"`
	IsSubscribed       bool       `json:"is_subscribed"`
	IsMaster           bool       `json:"is_master"`
	OTP                *string    `json:"-"`
	OTPExpires         *time.Time `json:"-"`
	ShiftConfigVersion int64      `json:"shift_config_version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// OTPMatches checks a one-time code against the stored one and its expiry.
func (a *Admin) OTPMatches(code string, now time.Time) bool {
	return otpMatches(a.OTP, a.OTPExpires, code, now)
}

func otpMatches(stored *string, expires *time.Time, code string, now time.Time) bool {
	if stored == nil || expires == nil || code == "" {
		return false
	}
	return *stored == code && now.Before(*expires)
}
