package satsearch

import (
	"math/bits"

	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
)

// model is the boolean circuit of the partition problem over scaled integer
// weights: one input per item (true = side A), a bit-vector bound L and the
// two comparators sum(A) <= L and sum(B) <= L.
type model struct {
	c       *logic.C
	weights []int64
	total   int64
	lower   int64
	width   int

	items []z.Lit
	bound []z.Lit
	fitsA z.Lit
	fitsB z.Lit
}

// buildModel creates item inputs in the given order, so that the order
// decides variable numbering and with it the solver's initial branching.
func buildModel(weights []int64, order []int) *model {
	m := &model{c: logic.NewC(), weights: weights}

	var maxItem int64
	for _, w := range weights {
		m.total += w
		if w > maxItem {
			maxItem = w
		}
	}
	m.lower = (m.total + 1) / 2
	if maxItem > m.lower {
		m.lower = maxItem
	}
	m.width = bits.Len64(uint64(m.total))
	if m.width == 0 {
		m.width = 1
	}

	m.items = make([]z.Lit, len(weights))
	for _, i := range order {
		m.items[i] = m.c.Lit()
	}
	m.bound = make([]z.Lit, m.width)
	for j := range m.bound {
		m.bound[j] = m.c.Lit()
	}

	sumA := m.constant(0)
	sumB := m.constant(0)
	for i, w := range weights {
		sumA = m.add(sumA, m.times(w, m.items[i]))
		sumB = m.add(sumB, m.times(w, m.items[i].Not()))
	}
	m.fitsA = m.lessEq(sumA, m.bound)
	m.fitsB = m.lessEq(sumB, m.bound)
	return m
}

func (m *model) constant(v int64) []z.Lit {
	out := make([]z.Lit, m.width)
	for j := range out {
		if v>>j&1 == 1 {
			out[j] = m.c.T
		} else {
			out[j] = m.c.F
		}
	}
	return out
}

// times returns w if x holds, else 0.
func (m *model) times(w int64, x z.Lit) []z.Lit {
	out := make([]z.Lit, m.width)
	for j := range out {
		if w>>j&1 == 1 {
			out[j] = x
		} else {
			out[j] = m.c.F
		}
	}
	return out
}

// add is a ripple-carry adder. Sums never exceed total, so the final carry
// is dropped.
func (m *model) add(a, b []z.Lit) []z.Lit {
	c := m.c
	out := make([]z.Lit, m.width)
	carry := c.F
	for j := range out {
		axb := m.xor(a[j], b[j])
		out[j] = m.xor(axb, carry)
		carry = c.Or(c.And(a[j], b[j]), c.And(carry, axb))
	}
	return out
}

func (m *model) xor(a, b z.Lit) z.Lit {
	return m.c.Or(m.c.And(a, b.Not()), m.c.And(a.Not(), b))
}

// lessEq is true iff unsigned a <= b.
func (m *model) lessEq(a, b []z.Lit) z.Lit {
	c := m.c
	le := c.T
	for j := range a {
		lt := c.And(a[j].Not(), b[j])
		eq := m.xor(a[j], b[j]).Not()
		le = c.Or(lt, c.And(eq, le))
	}
	return le
}

// boundAssumptions returns the literals fixing L to exactly v.
func (m *model) boundAssumptions(v int64) []z.Lit {
	out := make([]z.Lit, m.width)
	for j, bit := range m.bound {
		if v>>j&1 == 1 {
			out[j] = bit
		} else {
			out[j] = bit.Not()
		}
	}
	return out
}

// objective evaluates an assignment: the larger side sum.
func (m *model) objective(inA []bool) int64 {
	var sumA int64
	for i, w := range m.weights {
		if inA[i] {
			sumA += w
		}
	}
	if sumB := m.total - sumA; sumB > sumA {
		return sumB
	}
	return sumA
}
