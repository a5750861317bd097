package compare

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// Print writes per-episode detail for every failure followed by the summary.
// The percentage is truncated to a whole number.
func (r Report) Print(w io.Writer) {
	for _, o := range r.Failures() {
		switch o.Reason {
		case ReasonMissing:
			fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("[!] Could not find episode %s", o.EpisodeID)))
		default:
			fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("[!] Episode %s is not correct", o.EpisodeID)))
			fmt.Fprintf(w, "expected %s but found %s\n", o.Expected, o.Actual)
		}
	}
	if len(r.Unexamined) > 0 {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("[i] %d detected episodes are not in the expected dataset and were not checked", len(r.Unexamined))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headingStyle.Render("Statistics:"))
	fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("Correct:   %d (%d%%)", r.Correct, int(r.Percent()))))
	incorrect := fmt.Sprintf("Incorrect: %d", r.Incorrect)
	if r.Incorrect > 0 {
		incorrect = failStyle.Render(incorrect)
	}
	fmt.Fprintln(w, incorrect)
	fmt.Fprintf(w, "Total:     %d\n", r.Total)
}
