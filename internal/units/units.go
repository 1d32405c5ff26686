// Package units converts between human-readable token amounts and integer base units.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse turns "10.5" into 10.5 * 10^decimals base units. Extra fractional digits are truncated.
func Parse(human string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(human)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", human, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", human)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// MustParse is Parse for package-level constants.
func MustParse(human string, decimals uint8) *big.Int {
	v, err := Parse(human, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders base units as a decimal string, e.g. 10050000 @6 -> "10.05".
func Format(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// Rescale moves an amount between decimal precisions. Scaling down truncates toward zero.
func Rescale(amount *big.Int, from, to uint8) *big.Int {
	if amount == nil {
		return nil
	}
	out := new(big.Int).Set(amount)
	switch {
	case to > from:
		out.Mul(out, Pow10(to-from))
	case from > to:
		out.Quo(out, Pow10(from-to))
	}
	return out
}

// Pow10 returns 10^n as a fresh big.Int.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Float is for gauges and log fields only; never feed it back into arithmetic.
func Float(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).InexactFloat64()
}
