package shared

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// balanceEpsilon absorbs floating-point drift from repeated subtraction. Any
// computed balance below this threshold is persisted as exactly zero.
const balanceEpsilon = 0.005

var amountPrinter = message.NewPrinter(language.Spanish)

// NormalizeAmount rounds near-zero balances to exactly 0 and everything else to
// two decimal places. Applied at the point balances are persisted, not only at
// display time.
func NormalizeAmount(v float64) float64 {
	if math.Abs(v) < balanceEpsilon {
		return 0
	}
	return math.Round(v*100) / 100
}

// FormatAmount renders a monetary amount with thousands separators and two
// decimals for audit entries and reminder messages.
func FormatAmount(v float64) string {
	return amountPrinter.Sprintf("$%.2f", NormalizeAmount(v))
}
