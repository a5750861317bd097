package cli

import (
	"fmt"

	"intro-verifier/internal/history"
	"intro-verifier/internal/platform/config"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		path  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded verification runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("history-db") {
				path = config.GetEnv("HISTORY_DB", path)
			}
			store, err := history.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-20s  %-8s  %7s  %s\n", "RUN", "STARTED", "VERSION", "PERCENT", "CORRECT/TOTAL")
			for _, r := range runs {
				started := r.StartedAt.Local().Format("2006-01-02 15:04:05")
				fmt.Fprintf(out, "%-36s  %-20s  %-8s  %6.1f%%  %d/%d\n", r.ID, started, r.Version, r.Percent, r.Correct, r.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "history-db", "introverify.db", "SQLite database written by verify --history-db")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")
	return cmd
}
