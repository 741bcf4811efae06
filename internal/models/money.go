package models

import (
	"math"
	"strconv"
)

// Money is an amount in the currency's minor unit.
type Money int64

func (m Money) Int64() int64 {
	return int64(m)
}

// Mul scales a per-unit price by a count. ok is false when the product
// overflows or either operand is negative.
func (m Money) Mul(n int) (product Money, ok bool) {
	if m < 0 || n < 0 {
		return 0, false
	}
	if m != 0 && int64(n) > math.MaxInt64/int64(m) {
		return 0, false
	}
	return m * Money(n), true
}

func (m Money) String() string {
	return strconv.FormatInt(int64(m), 10)
}
