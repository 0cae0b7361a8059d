package shiftplan

import (
	"sort"

	"github.com/Freeeeeet/studyroom/internal/apperr"
)

// Tier grants Percentage off when a student takes exactly MinShifts shifts.
type Tier struct {
	MinShifts  int `json:"min_shifts"`
	Percentage int `json:"discount_percentage"`
}

// DiscountRequest is the admin-facing form: an optional discount for two shifts,
// three shifts and for taking every configured shift. Zero or nil means "none".
type DiscountRequest struct {
	TwoShifts   *int `json:"discount2Shifts"`
	ThreeShifts *int `json:"discount3Shifts"`
	AllShifts   *int `json:"discountAllShifts"`
}

// DiscountTable is the set of tiers of one admin, ordered by MinShifts.
type DiscountTable []Tier

// NewDiscountTable validates tiers against the number of configured shifts.
func NewDiscountTable(numShifts int, tiers []Tier) (DiscountTable, error) {
	seen := make(map[int]bool, len(tiers))
	table := make(DiscountTable, 0, len(tiers))
	for _, t := range tiers {
		if t.MinShifts < 1 {
			return nil, apperr.Invalid("discount threshold must be positive")
		}
		if t.MinShifts > numShifts {
			return nil, apperr.Invalid("discount for %d shifts requires at least %d shifts configured", t.MinShifts, t.MinShifts)
		}
		if t.Percentage < 0 || t.Percentage > 100 {
			return nil, apperr.Invalid("discount percentage must be between 0 and 100")
		}
		if seen[t.MinShifts] {
			return nil, apperr.Invalid("duplicate discount for %d shifts", t.MinShifts)
		}
		seen[t.MinShifts] = true
		if t.Percentage == 0 {
			continue
		}
		table = append(table, t)
	}
	sort.Slice(table, func(i, j int) bool { return table[i].MinShifts < table[j].MinShifts })
	return table, nil
}

// Configure turns a DiscountRequest into a table for numShifts shifts.
func Configure(numShifts int, req DiscountRequest) (DiscountTable, error) {
	two, three, all := value(req.TwoShifts), value(req.ThreeShifts), value(req.AllShifts)

	if numShifts < 2 && (two != 0 || three != 0 || all != 0) {
		return nil, apperr.Invalid("discounts are not applicable with fewer than 2 shifts")
	}
	if numShifts < 3 && three != 0 {
		return nil, apperr.Invalid("discount for 3 shifts requires at least 3 shifts configured")
	}

	byThreshold := make(map[int]int, 3)
	put := func(minShifts, pct int) error {
		if pct == 0 {
			return nil
		}
		if prev, ok := byThreshold[minShifts]; ok && prev != pct {
			return apperr.Invalid("conflicting discounts for %d shifts: %d%% and %d%%", minShifts, prev, pct)
		}
		byThreshold[minShifts] = pct
		return nil
	}
	if err := put(2, two); err != nil {
		return nil, err
	}
	if err := put(3, three); err != nil {
		return nil, err
	}
	if err := put(numShifts, all); err != nil {
		return nil, err
	}

	tiers := make([]Tier, 0, len(byThreshold))
	for minShifts, pct := range byThreshold {
		tiers = append(tiers, Tier{MinShifts: minShifts, Percentage: pct})
	}
	return NewDiscountTable(numShifts, tiers)
}

// Match returns the tier whose threshold equals count exactly.
func (t DiscountTable) Match(count int) (Tier, bool) {
	for _, tier := range t {
		if tier.MinShifts == count {
			return tier, true
		}
	}
	return Tier{}, false
}

// Within drops tiers that no longer fit numShifts.
func (t DiscountTable) Within(numShifts int) DiscountTable {
	out := make(DiscountTable, 0, len(t))
	for _, tier := range t {
		if tier.MinShifts <= numShifts {
			out = append(out, tier)
		}
	}
	return out
}

func value(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
