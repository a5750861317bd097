package cli

import (
	"time"

	"intro-verifier/internal/harness"
	"intro-verifier/internal/platform/config"
	"intro-verifier/internal/platform/metrics"

	"github.com/spf13/cobra"
)

type verifyOptions struct {
	server       string
	taskID       string
	poll         time.Duration
	maxWait      time.Duration
	expected     string
	skipAnalysis bool
	sampleSize   int
	strict       bool
	dump         string
	metricsFile  string
	historyDB    string
	minAccuracy  float64
}

func newVerifyCmd(g *globalOptions) *cobra.Command {
	o := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run the analysis task and score the detected intros",
		Long: `Erase previously detected intros, start the analysis task, wait for it to
finish and compare every expected episode against the plugin's results.
Timestamps within 2 seconds of the expected value are counted as correct.

Exit codes: 0 success, 1 runtime failure, 2 configuration error,
3 accuracy below --min-accuracy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			o.apply(cmd, &cfg)

			r := harness.New(cfg, g.log, metrics.New(), cmd.OutOrStdout())
			_, err = r.Run(cmd.Context())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.server, "server", "s", harness.DefaultServer, "server address with protocol and port")
	f.StringVar(&o.taskID, "task-id", "", "scheduled task id of the analysis task")
	o.poll, o.maxWait = harness.DefaultPollInterval, harness.DefaultMaxWait
	f.VarP((*seconds)(&o.poll), "poll", "f", "delay before every task status check (bare numbers are seconds)")
	f.Var((*seconds)(&o.maxWait), "max-wait", "give up waiting for the task after this long, 0 waits forever (bare numbers are seconds)")
	f.StringVarP(&o.expected, "expected", "e", harness.DefaultExpectedFile, "expected intro timestamps (JSON)")
	f.BoolVar(&o.skipAnalysis, "skip-analysis", false, "score the current results without re-running the analysis")
	f.IntVar(&o.sampleSize, "sample-size", harness.DefaultSampleSize, "episodes to spot-check across API versions")
	f.BoolVar(&o.strict, "strict", false, "fail when API version variants disagree")
	f.StringVar(&o.dump, "dump", harness.DefaultDumpPath, "where to write the raw results")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format")
	f.StringVar(&o.historyDB, "history-db", "", "record the run in this SQLite database")
	f.Float64Var(&o.minAccuracy, "min-accuracy", 0, "minimum percentage of correct episodes")
	return cmd
}

// seconds is a duration flag that also accepts a bare number of seconds.
type seconds time.Duration

func (s *seconds) String() string { return time.Duration(*s).String() }

func (s *seconds) Set(v string) error {
	d, err := config.ParseDuration(v)
	if err != nil {
		return err
	}
	*s = seconds(d)
	return nil
}

func (s *seconds) Type() string { return "duration" }

// apply overrides cfg with every flag set on the command line.
func (o *verifyOptions) apply(cmd *cobra.Command, cfg *harness.Config) {
	f := cmd.Flags()
	if f.Changed("server") {
		cfg.Server = o.server
	}
	if f.Changed("task-id") {
		cfg.TaskID = o.taskID
	}
	if f.Changed("poll") {
		cfg.PollInterval = o.poll
	}
	if f.Changed("max-wait") {
		cfg.MaxWait = o.maxWait
	}
	if f.Changed("expected") {
		cfg.ExpectedFile = o.expected
	}
	if f.Changed("skip-analysis") {
		cfg.SkipAnalysis = o.skipAnalysis
	}
	if f.Changed("sample-size") {
		cfg.SampleSize = o.sampleSize
	}
	if f.Changed("strict") {
		cfg.Strict = o.strict
	}
	if f.Changed("dump") {
		cfg.DumpPath = o.dump
	}
	if f.Changed("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}
	if f.Changed("history-db") {
		cfg.HistoryDB = o.historyDB
	}
	if f.Changed("min-accuracy") {
		cfg.MinAccuracy = o.minAccuracy
	}
}
