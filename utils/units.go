package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ToMinorUnits converts a decimal native amount to integer minor units,
// truncating toward zero. Fractions below one minor unit are dropped.
func ToMinorUnits(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromMinorUnits converts integer minor units to a decimal native amount.
func FromMinorUnits(amount *big.Int, decimals int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// RoundMoney rounds half-up to two decimal places for display totals.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseNativePrice parses a display price such as "0.15 FIL". The unit
// suffix, if present, is ignored.
func ParseNativePrice(s string) (decimal.Decimal, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return decimal.Zero, fmt.Errorf("price cannot be empty")
	}
	if len(fields) > 2 {
		return decimal.Zero, fmt.Errorf("invalid price format: %q", s)
	}

	dec, err := ValidateAmount(fields[0])
	if err != nil {
		return decimal.Zero, err
	}
	return dec, nil
}

// ValidateAmount checks that amount is a non-negative decimal
func ValidateAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount cannot be negative")
	}

	return dec, nil
}

// FormatBalance renders a native balance with four decimals, as the wallet badge shows it.
func FormatBalance(balance decimal.Decimal) string {
	return balance.StringFixed(4)
}
