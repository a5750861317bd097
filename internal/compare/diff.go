package compare

import (
	"fmt"
	"math"

	"intro-verifier/internal/dataset"
)

// DiffTolerance is the allowed drift, in seconds, between two runs before an
// episode is flagged as different.
const DiffTolerance = 5.0

// Warning classes assigned by DiffReports.
const (
	WarnOkay         = "okay"
	WarnDifferent    = "different"
	WarnOnlyPrevious = "only_previous"
	WarnImprovement  = "improvement"
	WarnMissing      = "missing"
)

// Pair describes one episode across an old and a new run.
type Pair struct {
	EpisodeID dataset.EpisodeID
	Old       *dataset.IntroInterval
	New       *dataset.IntroInterval
	Warning   string
	Detail    string
}

// DiffReports classifies every episode present in either run. An entry only
// counts as a detected intro when its interval has a positive duration, so
// zeroed placeholders on both sides are reported as missing. Results are
// sorted by episode id.
func DiffReports(prev, cur dataset.Dataset) []Pair {
	ids := make(dataset.Dataset, len(prev)+len(cur))
	for id := range prev {
		ids[id] = dataset.IntroInterval{}
	}
	for id := range cur {
		ids[id] = dataset.IntroInterval{}
	}

	pairs := make([]Pair, 0, len(ids))
	for _, id := range ids.Keys() {
		p := Pair{EpisodeID: id}
		if o, ok := prev[id]; ok {
			p.Old = &o
		}
		if n, ok := cur[id]; ok {
			p.New = &n
		}

		oldValid, newValid := valid(p.Old), valid(p.New)
		switch {
		case oldValid && !newValid:
			p.Warning = WarnOnlyPrevious
			p.Detail = "Introduction found in previous report, but not the current one"
		case !oldValid && newValid:
			p.Warning = WarnImprovement
			p.Detail = "New introduction discovered"
		case !oldValid && !newValid:
			p.Warning = WarnMissing
			p.Detail = "No introduction has ever been found for this episode"
		case !similar(p.Old.Start, p.New.Start) || !similar(p.Old.End, p.New.End):
			p.Warning = WarnDifferent
			p.Detail = fmt.Sprintf("Timestamps differ by more than %g seconds", DiffTolerance)
		default:
			p.Warning = WarnOkay
			p.Detail = "Okay"
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// DiffSummary counts pairs per warning class.
func DiffSummary(pairs []Pair) map[string]int {
	out := make(map[string]int, 5)
	for _, p := range pairs {
		out[p.Warning]++
	}
	return out
}

func similar(a, b float64) bool {
	return math.Abs(a-b) <= DiffTolerance
}

func valid(in *dataset.IntroInterval) bool {
	return in != nil && in.Duration() > 0
}
