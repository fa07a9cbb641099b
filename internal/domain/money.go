/**
 * @description
 * Monetary helpers shared by every component. All amounts in the system are
 * fixed-point decimals with two fractional digits; float64 never touches money.
 *
 * @notes
 * - Line items round half-to-even at two places; totals are summed from
 *   unrounded lines and rounded once at the end.
 */

package domain

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits carried by every stored amount.
const MoneyScale = 2

// RoundMoney rounds a monetary amount half-to-even at two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyScale)
}

// Percent converts a percentage figure (e.g. 12.5) into its multiplier (0.125).
func Percent(pct decimal.Decimal) decimal.Decimal {
	return pct.Div(decimal.NewFromInt(100))
}

// MoneyEqual compares two monetary amounts at storage precision.
func MoneyEqual(a, b decimal.Decimal) bool {
	return RoundMoney(a).Equal(RoundMoney(b))
}

// MoneyFromString parses a decimal amount, returning zero on malformed input
// together with false so callers can reject at the boundary.
func MoneyFromString(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
