// Package compare scores detected intro timestamps against the expected
// dataset.
package compare

import (
	"fmt"
	"math"
	"sort"

	"intro-verifier/internal/dataset"
)

// Tolerance is the largest difference, in seconds, between an expected and an
// actual endpoint that still counts as a match.
const Tolerance = 2.0

// Reasons recorded on incorrect outcomes.
const (
	ReasonMissing  = "missing episode"
	ReasonMismatch = "tolerance mismatch"
)

// CloseEnough reports whether a and b differ by at most Tolerance.
func CloseEnough(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}

// MissingEpisodeError marks an expected episode absent from the actual results.
type MissingEpisodeError struct {
	EpisodeID dataset.EpisodeID
}

func (e *MissingEpisodeError) Error() string {
	return fmt.Sprintf("could not find episode %s", e.EpisodeID)
}

// ToleranceMismatchError marks an episode whose timestamps are too far apart.
type ToleranceMismatchError struct {
	EpisodeID dataset.EpisodeID
	Expected  dataset.IntroInterval
	Actual    dataset.IntroInterval
}

func (e *ToleranceMismatchError) Error() string {
	return fmt.Sprintf("episode %s is not correct: expected %s but found %s", e.EpisodeID, e.Expected, e.Actual)
}

// Outcome is the verdict for one expected episode.
type Outcome struct {
	EpisodeID dataset.EpisodeID
	Matched   bool
	Reason    string
	Expected  dataset.IntroInterval
	Actual    *dataset.IntroInterval
	Err       error
}

// Report aggregates the outcomes of one comparison.
type Report struct {
	Outcomes  []Outcome
	Correct   int
	Incorrect int
	Total     int

	// Unexamined lists episodes present in the actual results but absent from
	// the expected dataset. They are never scored.
	Unexamined []dataset.EpisodeID
}

// Compare scores every expected episode against actual. Scoring is driven by
// the expected dataset only.
func Compare(expected, actual dataset.Dataset) Report {
	r := Report{
		Outcomes: make([]Outcome, 0, len(expected)),
		Total:    len(expected),
	}

	for _, id := range expected.Keys() {
		ex := expected[id]
		ac, ok := actual[id]
		if !ok {
			r.Incorrect++
			r.Outcomes = append(r.Outcomes, Outcome{
				EpisodeID: id,
				Reason:    ReasonMissing,
				Expected:  ex,
				Err:       &MissingEpisodeError{EpisodeID: id},
			})
			continue
		}

		if CloseEnough(ex.Start, ac.Start) && CloseEnough(ex.End, ac.End) {
			r.Correct++
			r.Outcomes = append(r.Outcomes, Outcome{EpisodeID: id, Matched: true, Expected: ex, Actual: &ac})
			continue
		}

		r.Incorrect++
		r.Outcomes = append(r.Outcomes, Outcome{
			EpisodeID: id,
			Reason:    ReasonMismatch,
			Expected:  ex,
			Actual:    &ac,
			Err:       &ToleranceMismatchError{EpisodeID: id, Expected: ex, Actual: ac},
		})
	}

	for id := range actual {
		if _, ok := expected[id]; !ok {
			r.Unexamined = append(r.Unexamined, id)
		}
	}
	sort.Slice(r.Unexamined, func(i, j int) bool { return r.Unexamined[i] < r.Unexamined[j] })

	return r
}

// Percent returns the share of correct episodes. An empty dataset yields 0.
func (r Report) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) * 100 / float64(r.Total)
}

// Failures returns the incorrect outcomes in report order.
func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Matched {
			out = append(out, o)
		}
	}
	return out
}
