package notify

import "fmt"

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
}

// FormatAmount форматирует сумму из минимальных единиц (пайсы, центы).
// Дробная часть опускается, если она равна 0.
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency + " "
	}
	if minor%100 == 0 {
		return fmt.Sprintf("%s%s%d", sign, symbol, minor/100)
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, symbol, minor/100, minor%100)
}
