package cbc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Normalized CBC statuses.
const (
	StatusOptimal         = "Optimal"
	StatusIntegerFeasible = "Integer Feasible"
	StatusNotSolved       = "Not Solved"
	StatusInfeasible      = "Infeasible"
	StatusUnbounded       = "Unbounded"
	StatusUndefined       = "Undefined"
)

// Result is the content of a CBC solution file.
type Result struct {
	Status    string
	Raw       string
	Objective float64
	Values    map[string]float64
}

// HasSolution reports whether the status carries a usable assignment.
func (r Result) HasSolution() bool {
	return r.Status == StatusOptimal || r.Status == StatusIntegerFeasible
}

// ReadSolutionFile parses the file written by "cbc ... solution <path>".
func ReadSolutionFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return ParseSolution(f)
}

// ParseSolution parses a CBC solution listing:
//
//	Optimal - objective value 19.30000000
//	      0 x_0        1        0
//	      5 L       19.3        0
//
// Only non-zero columns are listed; absent columns are zero.
func ParseSolution(r io.Reader) (Result, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("empty solution file")
	}

	res := Result{Raw: strings.TrimSpace(sc.Text()), Values: map[string]float64{}}
	head := res.Raw
	if i := strings.Index(head, "objective value"); i >= 0 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(head[i+len("objective value"):]), 64); err == nil {
			res.Objective = v
		}
	}

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] == "**" {
			fields = fields[1:]
		}
		if len(fields) < 3 {
			continue
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		res.Values[fields[1]] = v
	}
	if err := sc.Err(); err != nil {
		return Result{}, err
	}

	res.Status = normalizeStatus(head, len(res.Values) > 0)
	return res, nil
}

func normalizeStatus(head string, hasValues bool) string {
	lower := strings.ToLower(head)
	switch {
	case strings.HasPrefix(lower, "optimal"):
		return StatusOptimal
	case strings.HasPrefix(lower, "infeasible"), strings.HasPrefix(lower, "integer infeasible"):
		return StatusInfeasible
	case strings.HasPrefix(lower, "unbounded"):
		return StatusUnbounded
	case strings.HasPrefix(lower, "stopped"):
		if hasValues && !strings.Contains(lower, "no integer solution") {
			return StatusIntegerFeasible
		}
		return StatusNotSolved
	default:
		return StatusUndefined
	}
}
