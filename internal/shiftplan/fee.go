package shiftplan

import "github.com/Freeeeeet/studyroom/internal/apperr"

// MonthlyFee sums the base fees of the selected shifts (minor currency units) and
// applies the tier matching exactly len(fees). The discounted amount is rounded
// half-up to the minor unit.
func MonthlyFee(fees []int64, table DiscountTable) (int64, error) {
	return MonthlyFeeFor(fees, len(fees), table)
}

// MonthlyFeeFor is MonthlyFee with an explicit selected count.
func MonthlyFeeFor(fees []int64, selectedCount int, table DiscountTable) (int64, error) {
	var total int64
	for _, f := range fees {
		if f < 0 {
			return 0, apperr.Invalid("shift fee cannot be negative")
		}
		total += f
	}

	tier, ok := table.Match(selectedCount)
	if !ok {
		return total, nil
	}

	return applyPercentage(total, tier.Percentage), nil
}

func applyPercentage(amount int64, pct int) int64 {
	keep := int64(100 - pct)
	return (amount*keep + 50) / 100
}
