// Package convergence reconstructs objective-over-time sequences from solver
// output: live callback lines and three fallback log grammars.
package convergence

import (
	"sort"
)

// StatusFeasible labels intermediate improvements.
const StatusFeasible = "FEASIBLE"

// Point is one observation of the incumbent objective.
type Point struct {
	Elapsed   float64 `json:"time_sec"`
	Objective float64 `json:"objective"`
	Status    string  `json:"status"`
}

// Grammar selects the fallback parser applied to captured solver text.
type Grammar int

const (
	// GrammarNone disables fallback parsing.
	GrammarNone Grammar = iota
	// GrammarBranchAndBound parses CBC-style node progress lines.
	GrammarBranchAndBound
	// GrammarTerminalSummary pairs wallclock lines with objective lines.
	GrammarTerminalSummary
	// GrammarSearchTrace parses CP/SAT style "#<rank> <t>s best:<v>" lines.
	GrammarSearchTrace
)

func (g Grammar) String() string {
	switch g {
	case GrammarBranchAndBound:
		return "branch_and_bound"
	case GrammarTerminalSummary:
		return "terminal_summary"
	case GrammarSearchTrace:
		return "search_trace"
	default:
		return "none"
	}
}

// Parse applies the grammar to text.
func (g Grammar) Parse(text string) []Point {
	switch g {
	case GrammarBranchAndBound:
		return ParseBranchAndBound(text)
	case GrammarTerminalSummary:
		return ParseTerminalSummary(text)
	case GrammarSearchTrace:
		return ParseSearchTrace(text)
	default:
		return nil
	}
}

// Sources carries every text a run can offer for extraction.
type Sources struct {
	// Live points emitted by the engine's improvement callback.
	Live []Point
	// Raw is the captured engine output.
	Raw string
	// Structured is the per-run structured log.
	Structured string
}

// Extract picks the best available convergence source.
//
// More than one live point wins outright. Otherwise g is applied to the raw
// capture when it is non-empty, else to the structured log. The result is
// stably sorted by time.
func Extract(g Grammar, src Sources) []Point {
	var points []Point
	switch {
	case len(src.Live) > 1:
		points = append(points, src.Live...)
	case src.Raw != "":
		points = g.Parse(src.Raw)
	default:
		points = g.Parse(src.Structured)
	}
	SortByTime(points)
	return points
}

// UsesLive reports whether Extract would return the live points unchanged.
func UsesLive(src Sources) bool {
	return len(src.Live) > 1
}

// SortByTime orders points by elapsed time, keeping emission order for ties.
func SortByTime(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Elapsed < points[j].Elapsed
	})
}

// WithFinal appends the terminal point. Its time is raised to the last
// point's time so the sequence stays non-decreasing.
func WithFinal(points []Point, final Point) []Point {
	if n := len(points); n > 0 && points[n-1].Elapsed > final.Elapsed {
		final.Elapsed = points[n-1].Elapsed
	}
	return append(points, final)
}
