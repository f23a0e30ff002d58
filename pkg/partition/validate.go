package partition

import (
	"math"
	"sort"

	"github.com/wehubfusion/partbench/pkg/errors"
)

// DefaultTolerance is the absolute tolerance used when comparing sums.
const DefaultTolerance = 1e-6

// ValidateLengths checks instance lengths before any engine sees them.
// expectedCount <= 0 disables the count check.
func ValidateLengths(lengths []float64, expectedCount int) error {
	if expectedCount > 0 && len(lengths) != expectedCount {
		return errors.InvalidInput("invalid number of items: expected %d, got %d", expectedCount, len(lengths))
	}
	if len(lengths) == 0 {
		return errors.InvalidInput("lengths list is empty")
	}
	for i, v := range lengths {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.InvalidInput("length at index %d is not finite: %v", i, v)
		}
		if v <= 0 {
			return errors.InvalidInput("length at index %d must be > 0: %v", i, v)
		}
	}
	return nil
}

// ValidateValues checks untyped decoded values and converts them to lengths.
// Anything that is not a number is rejected.
func ValidateValues(values []any, expectedCount int) ([]float64, error) {
	lengths := make([]float64, len(values))
	for i, raw := range values {
		v, ok := toFloat(raw)
		if !ok {
			return nil, errors.InvalidInput("length at index %d is not numeric: %#v", i, raw)
		}
		lengths[i] = v
	}
	if err := ValidateLengths(lengths, expectedCount); err != nil {
		return nil, err
	}
	return lengths, nil
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}

// ValidateSolution is the correctness gate applied to every engine result.
// The two sides must partition {0..n-1} and the reported sums and bound must
// match the sums recomputed from lengths within tol.
func ValidateSolution(lengths []float64, sol Solution, tol float64) error {
	n := len(lengths)

	seen := make(map[int]int, n)
	for _, i := range sol.SideA {
		seen[i]++
	}
	for _, i := range sol.SideB {
		seen[i]++
	}

	var missing, extra []int
	for i := 0; i < n; i++ {
		if seen[i] == 0 {
			missing = append(missing, i)
		}
	}
	for i := range seen {
		if i < 0 || i >= n {
			extra = append(extra, i)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Ints(extra)
		return errors.Correctness("invalid indices: missing=%v, extra=%v", orEmpty(missing), orEmpty(extra))
	}

	inA := make(map[int]bool, len(sol.SideA))
	for _, i := range sol.SideA {
		inA[i] = true
	}
	for _, i := range sol.SideB {
		if inA[i] {
			return errors.Correctness("overlap between side_a and side_b at index %d", i)
		}
	}

	var sumA, sumB float64
	for _, i := range sol.SideA {
		sumA += lengths[i]
	}
	for _, i := range sol.SideB {
		sumB += lengths[i]
	}
	maxSide := math.Max(sumA, sumB)

	if math.Abs(sumA-sol.SumA) > tol {
		return errors.Correctness("sum_a mismatch: expected %v, got %v", sumA, sol.SumA)
	}
	if math.Abs(sumB-sol.SumB) > tol {
		return errors.Correctness("sum_b mismatch: expected %v, got %v", sumB, sol.SumB)
	}
	if math.Abs(maxSide-sol.MaxSide) > tol {
		return errors.Correctness("max_side mismatch: expected %v, got %v", maxSide, sol.MaxSide)
	}
	return nil
}

func orEmpty(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
