// Package lpmodel writes the 2-way partition problem as a CPLEX LP file, the
// model format shared by the command-line MILP engines.
//
//	minimize   L
//	subject to sum(l_i * x_i)       <= L
//	           sum(l_i * (1 - x_i)) <= L
//	           x_i binary, L >= 0
//
// x_i = 1 places item i on side A.
package lpmodel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// BoundVar is the name of the continuous bound variable.
const BoundVar = "L"

const termsPerLine = 8

// Model is the LP formulation of one instance.
type Model struct {
	Name    string
	Lengths []float64
}

// New returns a model for lengths.
func New(name string, lengths []float64) *Model {
	return &Model{Name: name, Lengths: lengths}
}

// VarName returns the LP column name of item i.
func VarName(i int) string {
	return "x_" + strconv.Itoa(i)
}

// Total returns the sum of all lengths.
func (m *Model) Total() float64 {
	var total float64
	for _, v := range m.Lengths {
		total += v
	}
	return total
}

// WriteLP renders the model in CPLEX LP format.
func (m *Model) WriteLP(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "\\* %s *\\\n", m.Name)
	fmt.Fprintln(bw, "Minimize")
	fmt.Fprintf(bw, " obj: %s\n", BoundVar)
	fmt.Fprintln(bw, "Subject To")

	fmt.Fprint(bw, " side_a:")
	m.writeTerms(bw, 1)
	fmt.Fprintf(bw, " - %s <= 0\n", BoundVar)

	fmt.Fprint(bw, " side_b:")
	m.writeTerms(bw, -1)
	fmt.Fprintf(bw, " - %s <= %s\n", BoundVar, formatCoef(-m.Total()))

	fmt.Fprintln(bw, "Bounds")
	fmt.Fprintf(bw, " %s >= 0\n", BoundVar)

	fmt.Fprintln(bw, "Binaries")
	for i := range m.Lengths {
		fmt.Fprintf(bw, " %s", VarName(i))
		if (i+1)%termsPerLine == 0 {
			fmt.Fprintln(bw)
		}
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "End")

	return bw.Flush()
}

func (m *Model) writeTerms(w io.Writer, sign float64) {
	for i, v := range m.Lengths {
		if i > 0 && i%termsPerLine == 0 {
			fmt.Fprint(w, "\n  ")
		}
		coef := sign * v
		op := "+"
		if coef < 0 {
			op = "-"
			coef = -coef
		}
		fmt.Fprintf(w, " %s %s %s", op, formatCoef(coef), VarName(i))
	}
}

// WriteFile writes the model to path.
func (m *Model) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create lp file: %w", err)
	}
	if err := m.WriteLP(f); err != nil {
		f.Close()
		return fmt.Errorf("write lp file: %w", err)
	}
	return f.Close()
}

// Assignment maps solver column values back to item sides and the bound.
// Columns absent from values are treated as zero, which is how sparse
// solution files report them.
func (m *Model) Assignment(values map[string]float64) (inA []bool, bound float64) {
	inA = make([]bool, len(m.Lengths))
	for i := range m.Lengths {
		inA[i] = values[VarName(i)] > 0.5
	}
	return inA, values[BoundVar]
}

func formatCoef(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
