package mip

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/engine/cbc"
)

// Solution is what a sub-solver reports back.
type Solution struct {
	Status    string
	Objective float64
	Values    map[string]float64
	Usable    bool
}

// SubSolver describes how to drive one command-line MIP solver on an LP file.
type SubSolver struct {
	// Name is the key used in configuration.
	Name string

	// DefaultBinary is looked up when no explicit binary is configured.
	DefaultBinary string

	// TimeLimitKey is the solver's own name for the time-limit option.
	TimeLimitKey string

	// Args builds the command line.
	Args func(modelPath, solutionPath string, opts engine.Options) []string

	// ReadSolution parses the solution file written by the solver.
	ReadSolution func(path string) (Solution, error)
}

// subSolvers is the table of supported sub-solvers. Adding a solver means
// adding an entry here with its time-limit key and solution reader.
var subSolvers = map[string]SubSolver{
	"highs": {
		Name:          "highs",
		DefaultBinary: "highs",
		TimeLimitKey:  "time_limit",
		Args:          highsArgs,
		ReadSolution:  readHighsSolution,
	},
	"cbc": {
		Name:          "cbc",
		DefaultBinary: cbc.DefaultBinary,
		TimeLimitKey:  "seconds",
		Args: func(modelPath, solutionPath string, opts engine.Options) []string {
			return cbc.Args(modelPath, solutionPath, "seconds", opts)
		},
		ReadSolution: readCBCSolution,
	},
}

// LookupSubSolver returns the table entry for name.
func LookupSubSolver(name string) (SubSolver, bool) {
	s, ok := subSolvers[name]
	return s, ok
}

// SubSolverNames lists the supported sub-solvers in sorted order.
func SubSolverNames() []string {
	names := make([]string, 0, len(subSolvers))
	for name := range subSolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func highsArgs(modelPath, solutionPath string, opts engine.Options) []string {
	args := []string{"--model_file", modelPath, "--solution_file", solutionPath}
	if opts.TimeLimit > 0 {
		args = append(args, "--time_limit", opts.TimeLimitSeconds())
	}
	if opts.Seed != 0 {
		args = append(args, "--random_seed", strconv.FormatInt(opts.Seed, 10))
	}
	return args
}

func readCBCSolution(path string) (Solution, error) {
	res, err := cbc.ReadSolutionFile(path)
	if err != nil {
		return Solution{}, err
	}
	return Solution{Status: res.Status, Objective: res.Objective, Values: res.Values, Usable: res.HasSolution()}, nil
}

func readHighsSolution(path string) (Solution, error) {
	f, err := os.Open(path)
	if err != nil {
		return Solution{}, err
	}
	defer f.Close()
	return ParseHighsSolution(f)
}

// ParseHighsSolution reads the HiGHS raw solution format:
//
//	Model status
//	Optimal
//
//	# Primal solution values
//	Feasible
//	Objective 19.3
//	# Columns 16
//	x_0 1
//	...
//	# Rows 2
//
// Only the model status, objective and column values are used.
func ParseHighsSolution(r io.Reader) (Solution, error) {
	sol := Solution{Values: map[string]float64{}}
	sc := bufio.NewScanner(r)

	var (
		wantStatus bool
		columns    int
		inColumns  bool
		primal     bool
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "Model status":
			wantStatus = true
			continue
		case wantStatus:
			sol.Status = line
			wantStatus = false
			continue
		case strings.HasPrefix(line, "# Primal solution values"):
			primal = true
			continue
		case strings.HasPrefix(line, "# Dual solution values"):
			primal = false
			inColumns = false
			continue
		case primal && strings.HasPrefix(line, "Objective "):
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Objective ")), 64); err == nil {
				sol.Objective = v
			}
			continue
		case primal && strings.HasPrefix(line, "# Columns "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "# Columns ")))
			if err != nil {
				return Solution{}, fmt.Errorf("bad column header %q", line)
			}
			columns, inColumns = n, true
			continue
		case strings.HasPrefix(line, "#"):
			inColumns = false
			continue
		}

		if inColumns && columns > 0 {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				continue
			}
			sol.Values[fields[0]] = v
			columns--
		}
	}
	if err := sc.Err(); err != nil {
		return Solution{}, err
	}
	if sol.Status == "" {
		return Solution{}, fmt.Errorf("no model status in solution file")
	}

	sol.Usable = len(sol.Values) > 0 && (sol.Status == "Optimal" || strings.Contains(strings.ToLower(sol.Status), "limit"))
	return sol, nil
}
