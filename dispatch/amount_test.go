package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmount_CmpAddSub(t *testing.T) {
	a := NewAmountFromUnits(10, 0)
	b := NewAmountFromUnits(4, 5_000_000)

	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(a))

	assert.Equal(t, NewAmountFromUnits(14, 5_000_000), a.Add(b))
	assert.Equal(t, NewAmountFromUnits(5, 5_000_000), a.Sub(b))

	// Sub clamps at zero rather than going negative.
	assert.True(t, b.Sub(a).IsZero())
}

func TestAmount_IsZeroIsPositive(t *testing.T) {
	zero := NewAmountFromUnits(0, 0)
	assert.True(t, zero.IsZero())
	assert.False(t, zero.IsPositive())

	one := NewAmountFromUnits(0, 1)
	assert.False(t, one.IsZero())
	assert.True(t, one.IsPositive())
}

func TestAmount_String(t *testing.T) {
	tests := []struct {
		name   string
		amount Amount
		want   string
	}{
		{"whole", NewAmountFromUnits(12, 0), "12.0000000"},
		{"fractional", NewAmountFromUnits(12, 5_000_000), "12.5000000"},
		{"zero", NewAmountFromUnits(0, 0), "0.0000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.amount.String())
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Amount
		wantErr bool
	}{
		{"whole only", "12", NewAmountFromUnits(12, 0), false},
		{"with fraction", "12.5", NewAmountFromUnits(12, 5_000_000), false},
		{"full seven-digit fraction", "12.5000001", NewAmountFromUnits(12, 5_000_001), false},
		{"too many fraction digits", "12.12345678", Amount{}, true},
		{"garbage", "abc", Amount{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, 0, tt.want.Cmp(got))
		})
	}
}

func TestClampToHardLimitMinusOne(t *testing.T) {
	clamped := clampToHardLimitMinusOne()
	assert.Equal(t, -1, clamped.Cmp(HardAmountLimit))
}
