package staking

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is the precision of the staked token.
const DefaultDecimals = 18

// DisplayPrecision is the number of fractional digits shown for token amounts.
const DisplayPrecision = 4

const (
	// maxUint256Digits is the number of decimal digits in 2^256-1.
	maxUint256Digits = 78
	maxAmountLen     = 256
)

// ParseAmount converts a decimal string such as "100" or "0.25" into base
// units. The conversion is exact: inputs with more fractional digits than the
// token supports are rejected rather than rounded.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidAmount
	}
	if len(s) > maxAmountLen {
		return nil, fmt.Errorf("%w: too long", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if d.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	// Integer digits of the value in base units, checked before anything
	// expands the exponent.
	digits := int64(len(d.Coefficient().String())) + int64(d.Exponent()) + int64(decimals)
	if digits > maxUint256Digits {
		return nil, fmt.Errorf("%w: exceeds uint256", ErrInvalidAmount)
	}
	if digits <= 0 {
		return nil, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, decimals)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, decimals)
	}
	v := scaled.BigInt()
	if _, overflow := uint256.FromBig(v); overflow {
		return nil, fmt.Errorf("%w: exceeds uint256", ErrInvalidAmount)
	}
	return v, nil
}

// FormatAmount renders base units as a decimal string truncated to
// DisplayPrecision fractional digits.
func FormatAmount(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).Truncate(DisplayPrecision).String()
}

// FitsUint128 reports whether v fits the ledger's stake amount field
func FitsUint128(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 128
}
