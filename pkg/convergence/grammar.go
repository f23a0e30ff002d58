package convergence

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Cbc0010I After 2265000 nodes, 5 on tree, 138.6 best solution, best possible 138.55 (2145.67 seconds)
	branchAndBoundRe = regexp.MustCompile(`(?i),\s*([0-9.]+)\s*best solution,\s*best possible\s*([0-9.]+)\s*\((\d+\.?\d*) seconds\)`)

	wallclockRe = regexp.MustCompile(`Time \(Wallclock seconds\)\s*:\s*([0-9.]+)`)
	objectiveRe = regexp.MustCompile(`Objective value\s*:\s*([0-9.+\-eE]+)`)

	// #3       0.01s best:28.6   next:[19.3,28.5]
	searchTraceRe = regexp.MustCompile(`(?m)^#\d+\s+(\d+\.?\d*)s\s+best:([0-9.]+)`)
)

// LinePrefix marks convergence lines in the structured run log.
const LinePrefix = "[convergence]"

// Header is the column header written before any convergence line.
const Header = LinePrefix + " time_sec,objective,status"

// ParseBranchAndBound extracts (seconds, best solution) pairs from
// branch-and-bound progress lines, in line order.
func ParseBranchAndBound(text string) []Point {
	var points []Point
	eachLine(text, func(line string) {
		m := branchAndBoundRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		obj, err1 := strconv.ParseFloat(m[1], 64)
		t, err2 := strconv.ParseFloat(m[3], 64)
		if err1 != nil || err2 != nil {
			return
		}
		points = append(points, Point{Elapsed: t, Objective: obj, Status: StatusFeasible})
	})
	return points
}

// ParseTerminalSummary pairs each objective value with the most recent
// wallclock time seen before it. Objectives with no preceding time are dropped.
// The pairing relies on the engine printing both lines in order; interleaved
// output is mispaired, not detected.
func ParseTerminalSummary(text string) []Point {
	var (
		points   []Point
		lastTime float64
		haveTime bool
	)
	eachLine(text, func(line string) {
		if m := wallclockRe.FindStringSubmatch(line); m != nil {
			if t, err := strconv.ParseFloat(m[1], 64); err == nil {
				lastTime = t
				haveTime = true
			}
		}
		if m := objectiveRe.FindStringSubmatch(line); m != nil && haveTime {
			if obj, err := strconv.ParseFloat(m[1], 64); err == nil {
				points = append(points, Point{Elapsed: lastTime, Objective: obj, Status: StatusFeasible})
			}
		}
	})
	return points
}

// ParseSearchTrace extracts (t, best) pairs from search progress lines.
func ParseSearchTrace(text string) []Point {
	var points []Point
	for _, m := range searchTraceRe.FindAllStringSubmatch(text, -1) {
		t, err1 := strconv.ParseFloat(m[1], 64)
		obj, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		points = append(points, Point{Elapsed: t, Objective: obj, Status: StatusFeasible})
	}
	return points
}

// ParseLogLines reads "[convergence] t,obj[,status]" lines, skipping headers
// and malformed entries.
func ParseLogLines(text string) []Point {
	var points []Point
	eachLine(text, func(line string) {
		if !strings.HasPrefix(line, LinePrefix) {
			return
		}
		parts := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, LinePrefix)), ",")
		if len(parts) < 2 || parts[0] == "time_sec" {
			return
		}
		t, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		obj, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return
		}
		status := StatusFeasible
		if len(parts) >= 3 && strings.TrimSpace(parts[2]) != "" {
			status = strings.TrimSpace(parts[2])
		}
		points = append(points, Point{Elapsed: t, Objective: obj, Status: status})
	})
	return points
}

// FormatLine renders a point as a structured log line.
func FormatLine(p Point) string {
	return LinePrefix + " " + strconv.FormatFloat(p.Elapsed, 'f', 6, 64) + "," +
		FormatObjective(p.Objective) + "," + p.Status
}

// FormatObjective renders an objective with the shortest exact representation.
func FormatObjective(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func eachLine(text string, fn func(string)) {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		fn(strings.TrimRight(sc.Text(), "\r"))
	}
}
