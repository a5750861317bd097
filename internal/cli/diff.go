package cli

import (
	"fmt"

	"intro-verifier/internal/compare"
	"intro-verifier/internal/dataset"

	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compare two results dumps",
		Long: `Compare two raw /Intros/All dumps, for example from runs against two plugin
builds. Episodes whose timestamps moved by more than 5 seconds, and episodes
found by only one of the runs, are listed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := dataset.LoadExpected(args[0])
			if err != nil {
				return err
			}
			cur, err := dataset.LoadExpected(args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			pairs := compare.DiffReports(prev, cur)
			for _, p := range pairs {
				if p.Warning == compare.WarnOkay && !all {
					continue
				}
				fmt.Fprintf(out, "%-14s %s  %s -> %s  %s\n", p.Warning, p.EpisodeID, intervalOrDash(p.Old), intervalOrDash(p.New), p.Detail)
			}

			summary := compare.DiffSummary(pairs)
			fmt.Fprintln(out)
			for _, class := range []string{compare.WarnOkay, compare.WarnDifferent, compare.WarnOnlyPrevious, compare.WarnImprovement, compare.WarnMissing} {
				fmt.Fprintf(out, "%-14s %d\n", class+":", summary[class])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also list unchanged episodes")
	return cmd
}

func intervalOrDash(in *dataset.IntroInterval) string {
	if in == nil {
		return "-"
	}
	return in.String()
}
