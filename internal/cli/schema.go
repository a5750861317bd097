package cli

import (
	"errors"
	"fmt"
	"time"

	"intro-verifier/internal/apiclient"
	"intro-verifier/internal/dataset"
	"intro-verifier/internal/schema"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var errSchemaViolations = errors.New("schema violations found")

func newSchemaCmd(g *globalOptions) *cobra.Command {
	var (
		server string
		ids    []string
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Validate per-episode API responses against the v1 schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server") {
				cfg.Server = server
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("--ids is required")
			}

			client, err := apiclient.New(apiclient.Config{BaseURL: cfg.Server, Token: cfg.Token, Timeout: cfg.RequestTimeout}, g.log, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			start := time.Now()
			info, err := client.ServerInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetching server info: %w", err)
			}
			fmt.Fprintf(out, "Address:          %s\n", cfg.Server)
			fmt.Fprintf(out, "Server OS:        %s\n", info.OperatingSystem)
			fmt.Fprintf(out, "Server version:   %s\n\n", info.Version)

			episodes := make([]dataset.EpisodeID, len(ids))
			for i, id := range ids {
				episodes[i] = dataset.EpisodeID(id)
			}
			results, err := schema.NewValidator(client).Validate(cmd.Context(), episodes)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintln(out, failStyle.Render(fmt.Sprintf("[!] %s %s: %v", r.EpisodeID, r.Variant, r.Err)))
					continue
				}
				fmt.Fprintln(out, passStyle.Render(fmt.Sprintf("[+] %s %s: valid", r.EpisodeID, r.Variant)))
			}
			fmt.Fprintf(out, "\nValidated %d items in %s\n", len(ids), time.Since(start).Round(time.Millisecond))

			if n := schema.Failed(results); n > 0 {
				return fmt.Errorf("%w: %d of %d responses", errSchemaViolations, n, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "server address with protocol and port")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "comma separated episode ids to validate")
	return cmd
}
