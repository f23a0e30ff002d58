// Package partition holds the 2-way partition problem model shared by every
// engine: instances, the solution contract, length scaling and validation.
package partition

// Solution is the uniform answer every backend returns.
//
// SideA and SideB hold item indices into the instance lengths. MaxSide is the
// bound reported by the engine; SumA and SumB are recomputed from the lengths.
type Solution struct {
	Status  string  `json:"status"`
	MaxSide float64 `json:"max_side"`
	SideA   []int   `json:"side_a"`
	SideB   []int   `json:"side_b"`
	SumA    float64 `json:"sum_a"`
	SumB    float64 `json:"sum_b"`
}

// FromAssignment builds a Solution from a per-item side assignment.
// inA[i] reports whether item i was placed on side A.
func FromAssignment(status string, maxSide float64, inA []bool, lengths []float64) Solution {
	sol := Solution{
		Status:  status,
		MaxSide: maxSide,
		SideA:   make([]int, 0, len(lengths)),
		SideB:   make([]int, 0, len(lengths)),
	}
	for i, v := range lengths {
		if i < len(inA) && inA[i] {
			sol.SideA = append(sol.SideA, i)
			sol.SumA += v
		} else {
			sol.SideB = append(sol.SideB, i)
			sol.SumB += v
		}
	}
	return sol
}
