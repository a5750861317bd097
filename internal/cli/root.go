// Package cli provides the introverify command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"intro-verifier/internal/harness"
	"intro-verifier/internal/platform/config"
	"intro-verifier/internal/platform/logger"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitBelowMinimum  = 3
)

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string

	log *slog.Logger
}

// loadConfig layers the config file and environment for subcommands that talk
// to the server.
func (g *globalOptions) loadConfig() (harness.Config, error) {
	return harness.LoadConfig(g.configFile)
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "introverify",
		Short: "End-to-end verification of the intro skipper plugin",
		Long: `introverify drives the intro skipper plugin through the media server's API:
it erases previous results, runs the "Detect Introductions" task, waits for it
to finish and scores the detected timestamps against a trusted dataset.

The API token is read from JELLYFIN_TOKEN (environment or .env file).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(g.envFile); err != nil && cmd.Flags().Changed("env-file") {
				return &harness.ConfigurationError{Reason: "env file", Err: err}
			}
			level := g.logLevel
			if !cmd.Flags().Changed("log-level") {
				level = config.GetEnv("LOG_LEVEL", level)
			}
			format := g.logFormat
			if !cmd.Flags().Changed("log-format") {
				format = config.GetEnv("LOG_FORMAT", format)
			}
			g.log = logger.NewWithWriter(cmd.ErrOrStderr(), level, format)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "introverify.toml", "TOML config file (ignored if missing)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file to load")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format (text, json)")

	root.AddCommand(
		newVerifyCmd(g),
		newSchemaCmd(g),
		newDiffCmd(),
		newBrowserCmd(g),
		newHistoryCmd(),
	)
	return root
}

// Execute runs the command tree and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, newRootCmd(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: "+err.Error()))
	}
	return ExitCode(err)
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case harness.IsConfigurationError(err):
		return ExitConfiguration
	case errors.Is(err, harness.ErrBelowThreshold):
		return ExitBelowMinimum
	default:
		return ExitFailure
	}
}
