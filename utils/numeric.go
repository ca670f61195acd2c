package utils

import (
	"math/big"
	"strings"
)

// ParseBig parses a decimal string into a big.Int, returning zero for empty
// or malformed input.
func ParseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b *big.Int) *big.Int {
	diff := new(big.Int).Sub(a, b)
	return diff.Abs(diff)
}

// AddBig returns a + b where both operands are decimal strings.
func AddBig(a, b string) string {
	return new(big.Int).Add(ParseBig(a), ParseBig(b)).String()
}

// SubBigClamped returns max(a - b, 0) where both operands are decimal
// strings. Balances derived from events must never go negative.
func SubBigClamped(a, b string) string {
	result := new(big.Int).Sub(ParseBig(a), ParseBig(b))
	if result.Sign() < 0 {
		return "0"
	}
	return result.String()
}

// FormatUnits renders a raw token amount with the given number of decimals,
// trimming trailing zeros. Used for human-readable feed descriptions.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount, divisor, new(big.Int))

	negative := frac.Sign() < 0
	frac.Abs(frac)
	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := strings.TrimRight(padLeft(frac.String(), decimals), "0")
	result := whole.String() + "." + fracStr
	if negative && whole.Sign() == 0 {
		result = "-" + result
	}
	return result
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
