package cli

import (
	"time"

	"intro-verifier/internal/browser"
	"intro-verifier/internal/platform/config"

	"github.com/spf13/cobra"
)

func newBrowserCmd(g *globalOptions) *cobra.Command {
	var (
		cfg      browser.Config
		browsers []string
	)
	cmd := &cobra.Command{
		Use:   "browser",
		Short: "Check the skip intro button in a real browser",
		Long: `Log in to the web client, play an episode that already has an analysed intro
at its start, click the skip intro button and confirm playback continues.
Screenshots are saved before and after the skip.

Each --browsers entry is either a name (a local headless Chrome is launched)
or name=ws://host:port/... to attach to a remote DevTools endpoint. Browsers
are tested one after another.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := browser.ParseTargets(browsers)
			if err != nil {
				return err
			}
			cfg.Targets = targets
			if cfg.Password == "" {
				cfg.Password = config.GetEnv("JELLYFIN_PASSWORD", "")
			}
			return browser.New(cfg, g.log, cmd.OutOrStdout()).Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Host, "host", "", "server address with protocol and port")
	f.StringVar(&cfg.Username, "username", "", "user to log in as")
	f.StringVar(&cfg.Password, "password", "", "password (defaults to JELLYFIN_PASSWORD)")
	f.StringVar(&cfg.Episode, "name", "", "name of the episode to search for")
	f.StringSliceVar(&browsers, "browsers", []string{"chrome"}, "browsers to test with")
	f.StringSliceVar(&cfg.Tests, "tests", []string{browser.TestSkipButton}, "tests to run")
	f.StringVar(&cfg.ScreenshotDir, "screenshots", "screenshots", "directory for screenshots")
	f.DurationVar(&cfg.ElementTimeout, "element-timeout", 2*time.Second, "how long to wait for each element")
	return cmd
}
