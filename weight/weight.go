// Package weight holds the conservation arithmetic used when crates are
// mixed or split. Weights are whole grams held in a uint32.
package weight

import (
	"errors"
	"math"
)

var (
	ErrArithmeticOverflow = errors.New("weight sum overflows uint32")
	ErrWeightMismatch     = errors.New("weights are not conserved")
)

// Sum adds values, failing as soon as the running total passes math.MaxUint32.
func Sum(values ...uint32) (uint32, error) {
	var total uint32
	for _, v := range values {
		if v > math.MaxUint32-total {
			return 0, ErrArithmeticOverflow
		}
		total += v
	}
	return total, nil
}

// ValidateConservation requires the two totals to be exactly equal.
func ValidateConservation(parentTotal, childTotal uint32) error {
	if parentTotal != childTotal {
		return ErrWeightMismatch
	}
	return nil
}
