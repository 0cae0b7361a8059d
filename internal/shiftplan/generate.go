// Package shiftplan holds the pure rules for daily shift windows, discount tiers
// and monthly fees. Nothing here touches storage.
package shiftplan

import (
	"time"

	"github.com/Freeeeeet/studyroom/internal/apperr"
)

const (
	MaxShifts            = 4
	MaxHoursAtFullShifts = 6
	hoursPerDay          = 24
)

// Window is one generated shift.
type Window struct {
	Number int   `json:"shift_number"`
	Start  Clock `json:"start_time"`
	End    Clock `json:"end_time"`
}

// Generate lays out numShifts consecutive windows of hoursPerShift hours starting
// at startTime ("HH:MM"), wrapping around midnight.
func Generate(numShifts, hoursPerShift int, startTime string) ([]Window, error) {
	if numShifts < 1 {
		return nil, apperr.Invalid("at least one shift is required")
	}
	if numShifts > MaxShifts {
		return nil, apperr.Invalid("shifts cannot exceed %d", MaxShifts)
	}
	if hoursPerShift < 1 {
		return nil, apperr.Invalid("hours per shift must be positive")
	}
	if numShifts == MaxShifts && hoursPerShift > MaxHoursAtFullShifts {
		return nil, apperr.Invalid("hours per shift cannot exceed %d when configuring %d shifts", MaxHoursAtFullShifts, MaxShifts)
	}
	if hoursPerShift*numShifts > hoursPerDay {
		return nil, apperr.Invalid("total shift hours cannot exceed %d", hoursPerDay)
	}

	start, err := ParseClock(startTime)
	if err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}

	length := time.Duration(hoursPerShift) * time.Hour
	windows := make([]Window, 0, numShifts)
	for i := 0; i < numShifts; i++ {
		end := start.Add(length)
		windows = append(windows, Window{Number: i + 1, Start: start, End: end})
		start = end
	}

	return windows, nil
}
