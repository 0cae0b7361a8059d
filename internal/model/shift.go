package model

import (
	"time"

	"github.com/Freeeeeet/studyroom/internal/shiftplan"
	"github.com/google/uuid"
)

type Shift struct {
	ID        uuid.UUID       `json:"id"`
	AdminID   uuid.UUID       `json:"admin_id"`
	Number    int             `json:"shift_number"`
	StartTime shiftplan.Clock `json:"start_time"`
	EndTime   shiftplan.Clock `json:"end_time"`
	Fee       int64           `json:"fees"` // in minor units
	CreatedAt time.Time       `json:"created_at"`
}

type ShiftDiscount struct {
	ID         uuid.UUID `json:"id"`
	AdminID    uuid.UUID `json:"admin_id"`
	MinShifts  int       `json:"min_shifts"`
	Percentage int       `json:"discount_percentage"`
}

// ShiftConfig is the versioned shift + discount aggregate of one admin.
type ShiftConfig struct {
	AdminID   uuid.UUID        `json:"admin_id"`
	Version   int64            `json:"version"`
	Shifts    []*Shift         `json:"shifts"`
	Discounts []*ShiftDiscount `json:"discounts"`
}

// Table converts stored discounts into a discount table.
func (c *ShiftConfig) Table() shiftplan.DiscountTable {
	table := make(shiftplan.DiscountTable, 0, len(c.Discounts))
	for _, d := range c.Discounts {
		table = append(table, shiftplan.Tier{MinShifts: d.MinShifts, Percentage: d.Percentage})
	}
	return table
}

// ShiftByNumber finds a shift by its ordinal.
func (c *ShiftConfig) ShiftByNumber(n int) *Shift {
	for _, s := range c.Shifts {
		if s.Number == n {
			return s
		}
	}
	return nil
}
