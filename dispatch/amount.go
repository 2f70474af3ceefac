package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// amountScale matches a seven-decimal-place ledger unit (the precision
// spec.md §3 calls "gateway-defined"); operations are never compared or
// summed as floating point.
const amountScale = 10_000_000

// Amount is a non-negative fixed-point quantity backed by uint256.Int,
// the same integer type the teacher uses pervasively for balances and
// fees (miner/worker.go, core/state_transition_rollup.go).
type Amount struct {
	raw uint256.Int
}

// NewAmountFromUnits builds an Amount from whole-plus-fractional units,
// e.g. NewAmountFromUnits(12, 5_000_000) == 12.5.
func NewAmountFromUnits(whole uint64, fractional uint64) Amount {
	var a Amount
	a.raw.SetUint64(whole)
	a.raw.Mul(&a.raw, uint256.NewInt(amountScale))
	a.raw.Add(&a.raw, uint256.NewInt(fractional))
	return a
}

// ParseAmount parses a decimal string such as "12.5" or "12" produced
// by a gateway response body into an Amount, rejecting anything with
// more than seven fractional digits.
func ParseAmount(s string) (Amount, error) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	var f uint64
	if hasFrac {
		if len(frac) > 7 {
			return Amount{}, fmt.Errorf("invalid amount %q: too many fractional digits", s)
		}
		frac = frac + strings.Repeat("0", 7-len(frac))
		f, err = strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}
	return NewAmountFromUnits(w, f), nil
}

// NewAmountFromRaw builds an Amount from its underlying scaled integer.
func NewAmountFromRaw(raw uint64) Amount {
	var a Amount
	a.raw.SetUint64(raw)
	return a
}

// Cmp compares two amounts, returning -1, 0, or 1.
func (a Amount) Cmp(b Amount) int { return a.raw.Cmp(&b.raw) }

// Sub returns a-b, clamped to zero if the result would be negative.
func (a Amount) Sub(b Amount) Amount {
	var out Amount
	if a.raw.Cmp(&b.raw) <= 0 {
		return out
	}
	out.raw.Sub(&a.raw, &b.raw)
	return out
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.raw.Add(&a.raw, &b.raw)
	return out
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.raw.IsZero() }

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool { return !a.raw.IsZero() }

// String renders the amount as whole.fractional with all seven
// fractional digits, trailing zeros included (12.5 renders as
// "12.5000000").
func (a Amount) String() string {
	whole := new(uint256.Int).Div(&a.raw, uint256.NewInt(amountScale))
	frac := new(uint256.Int).Mod(&a.raw, uint256.NewInt(amountScale))
	return fmt.Sprintf("%s.%07d", whole.ToBig().String(), frac.Uint64())
}

// HardAmountLimit is spec.md §4.E's HARD_AMOUNT_LIMIT = 9e11.
var HardAmountLimit = NewAmountFromUnits(900_000_000_000, 0)

// SupplyRefillLimit is the target balance RecoveryActuator.RefillAsset
// tops a distributor's asset balance up to.
var SupplyRefillLimit = NewAmountFromUnits(10_000, 0)

// GasRefillAmount is the fixed small top-up RecoveryActuator.RefillGas
// sends from the refill wallet.
var GasRefillAmount = NewAmountFromUnits(10, 0)

// clampToHardLimitMinusOne returns HardAmountLimit-1 raw unit, the
// clamp spec.md §4.E step b applies to an oversize operation submitted
// singly.
func clampToHardLimitMinusOne() Amount {
	var out Amount
	out.raw.SubUint64(&HardAmountLimit.raw, 1)
	return out
}
