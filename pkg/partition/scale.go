package partition

import (
	"math"
	"strconv"
	"strings"

	"github.com/wehubfusion/partbench/pkg/errors"
)

// MaxScaleDecimals is the number of fractional digits ScaleLengths considers.
const MaxScaleDecimals = 10

// MaxScaledTotal bounds the sum of the scaled lengths. Keeping it two bits
// below the int64 range leaves room for the carry of the two side sums.
const MaxScaledTotal int64 = 1 << 61

// ScaleLengths converts lengths to integers for integer-only engines.
//
// Each value is rendered with MaxScaleDecimals fractional digits and trailing
// zeros are stripped; the largest remaining decimal count d gives factor 10^d
// and scaled[i] = round(lengths[i] * factor). Lengths whose scaled sum would
// exceed MaxScaledTotal are rejected as invalid input.
func ScaleLengths(lengths []float64) (scaled []int64, factor int64, err error) {
	decimals := 0
	for _, v := range lengths {
		if d := fractionalDigits(v); d > decimals {
			decimals = d
		}
	}

	factor = 1
	for i := 0; i < decimals; i++ {
		factor *= 10
	}

	limit := float64(MaxScaledTotal)
	scaled = make([]int64, len(lengths))
	var total int64
	for i, v := range lengths {
		x := math.Round(v * float64(factor))
		if !(x >= 0 && x <= limit) {
			return nil, 0, errors.InvalidInput("length %d (%v) out of range at scale factor %d", i, v, factor)
		}
		scaled[i] = int64(x)
		if scaled[i] > MaxScaledTotal-total {
			return nil, 0, errors.InvalidInput("sum of lengths out of range at scale factor %d", factor)
		}
		total += scaled[i]
	}
	return scaled, factor, nil
}

func fractionalDigits(v float64) int {
	s := strconv.FormatFloat(v, 'f', MaxScaleDecimals, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}
