// Package harness runs one end-to-end verification: trigger analysis, wait for
// it, fetch and score the results, and spot-check the versioned API.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"intro-verifier/internal/apiclient"
	"intro-verifier/internal/compare"
	"intro-verifier/internal/dataset"
	"intro-verifier/internal/history"
	"intro-verifier/internal/platform/metrics"
	"intro-verifier/internal/poller"
	"intro-verifier/internal/sampler"

	"github.com/charmbracelet/lipgloss"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	stepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// Result summarises a finished run.
type Result struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Server     apiclient.ServerInfo
	Report     compare.Report
	Samples    []sampler.Result
}

// Runner executes verification runs for one Config.
type Runner struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	out     io.Writer

	samplerOpts []sampler.Option
}

// Option configures a Runner.
type Option func(*Runner)

// WithSamplerOption passes opt to the version sampler, mainly to inject a
// deterministic random source.
func WithSamplerOption(opt sampler.Option) Option {
	return func(r *Runner) { r.samplerOpts = append(r.samplerOpts, opt) }
}

// New returns a Runner. The human-readable report is written to out. When m
// is nil a private registry is used.
func New(cfg Config, log *slog.Logger, m *metrics.Metrics, out io.Writer, opts ...Option) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if m == nil {
		m = metrics.New()
	}
	if out == nil {
		out = io.Discard
	}
	r := &Runner{cfg: cfg, log: log, metrics: m, out: out}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one verification. The returned Result is non-nil whenever
// scoring completed, even if a later step (strict sampling, threshold) failed.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	expected, err := dataset.LoadExpected(cfg.ExpectedFile)
	if err != nil {
		return nil, &ConfigurationError{Reason: "expected dataset", Err: err}
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.Server,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
	}, r.log, r.metrics)
	if err != nil {
		return nil, &ConfigurationError{Reason: "api client", Err: err}
	}

	unlock, err := lockWorkspace(cfg.DumpPath + ".lock")
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &Result{ID: uuid.New(), StartedAt: time.Now()}
	r.log.Info("verification started", slog.String("run_id", res.ID.String()), slog.Any("config", cfg))

	if res.Server, err = r.printHeader(ctx, client, len(expected)); err != nil {
		return nil, err
	}

	interval := cfg.PollInterval
	if cfg.SkipAnalysis {
		interval = 0
		fmt.Fprintln(r.out, stepStyle.Render("[+] Skipping analysis"))
	} else {
		fmt.Fprintln(r.out, stepStyle.Render("[+] Erasing previously discovered introductions"))
		if err := client.EraseTimestamps(ctx); err != nil {
			return nil, fmt.Errorf("erasing timestamps: %w", err)
		}
		fmt.Fprintln(r.out, stepStyle.Render("[+] Starting analysis task"))
		if err := client.StartTask(ctx, cfg.TaskID); err != nil {
			return nil, fmt.Errorf("starting analysis: %w", err)
		}
	}

	p := poller.New(client,
		poller.WithInterval(interval),
		poller.WithMaxWait(cfg.MaxWait),
		poller.WithObserver(r.observeProgress),
	)
	if err := p.AwaitCompletion(ctx, cfg.TaskID); err != nil {
		return nil, fmt.Errorf("waiting for analysis: %w", err)
	}

	fmt.Fprintln(r.out, stepStyle.Render("[+] Fetching results"))
	actual, raw, err := client.AllIntros(ctx)
	if raw != nil {
		if dumpErr := dataset.WriteDump(cfg.DumpPath, raw); dumpErr != nil {
			return nil, dumpErr
		}
		r.log.Info("results dumped", slog.String("path", cfg.DumpPath), slog.Int("bytes", len(raw)))
	}
	if err != nil {
		return nil, fmt.Errorf("fetching results: %w", err)
	}

	res.Report = compare.Compare(expected, actual)
	fmt.Fprintln(r.out)
	res.Report.Print(r.out)
	r.metrics.SetScore(res.Report.Correct, res.Report.Incorrect, res.Report.Total, res.Report.Percent())
	for _, o := range res.Report.Failures() {
		r.log.Debug("episode failed", slog.String("episode", string(o.EpisodeID)), slog.String("reason", o.Reason))
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, stepStyle.Render("[+] Checking API version consistency"))
	samplerOpts := append([]sampler.Option{sampler.WithLogger(r.log), sampler.WithStrict(cfg.Strict)}, r.samplerOpts...)
	var sampleErr error
	res.Samples, sampleErr = sampler.New(client, samplerOpts...).Sample(ctx, expected.Keys(), cfg.SampleSize)
	fmt.Fprintf(r.out, "Sampled %d responses\n", len(res.Samples))

	res.FinishedAt = time.Now()
	if err := r.persist(ctx, res); err != nil {
		return res, err
	}

	r.log.Info("verification finished",
		slog.String("run_id", res.ID.String()),
		slog.Int("correct", res.Report.Correct),
		slog.Int("incorrect", res.Report.Incorrect),
		slog.Int("total", res.Report.Total),
		slog.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)))

	if sampleErr != nil {
		return res, fmt.Errorf("version cross-check: %w", sampleErr)
	}
	if cfg.MinAccuracy > 0 && res.Report.Percent() < cfg.MinAccuracy {
		return res, fmt.Errorf("%w: %.1f%% < %.1f%%", ErrBelowThreshold, res.Report.Percent(), cfg.MinAccuracy)
	}
	return res, nil
}

func (r *Runner) printHeader(ctx context.Context, client *apiclient.Client, expected int) (apiclient.ServerInfo, error) {
	info, err := client.ServerInfo(ctx)
	if err != nil {
		return info, fmt.Errorf("fetching server info: %w", err)
	}

	fmt.Fprintf(r.out, "%s %s\n", labelStyle.Render("Started at:      "), time.Now().Format(time.RFC1123))
	fmt.Fprintf(r.out, "%s %s\n", labelStyle.Render("Address:         "), r.cfg.Server)
	fmt.Fprintf(r.out, "%s %s (%s)\n", labelStyle.Render("Server:          "), info.ServerName, info.Version)
	fmt.Fprintf(r.out, "%s %s\n", labelStyle.Render("Operating system:"), info.OperatingSystem)

	pc, err := client.PluginConfiguration(ctx)
	if err != nil {
		r.log.Warn("plugin configuration unavailable", slog.String("error", err.Error()))
	} else {
		fmt.Fprintf(r.out, "%s %s\n", labelStyle.Render("Analysis:        "), pc.AnalysisSettings())
		fmt.Fprintf(r.out, "%s %s\n", labelStyle.Render("Requirements:    "), pc.IntroductionRequirements())
	}
	fmt.Fprintf(r.out, "%s %d\n\n", labelStyle.Render("Expected:        "), expected)
	return info, nil
}

func (r *Runner) observeProgress(p poller.Progress) {
	r.metrics.ObservePoll(p.Percent)
	r.log.Debug("task status",
		slog.Int("check", p.Check),
		slog.String("state", p.State),
		slog.Float64("percent", p.Percent))
	fmt.Fprintf(r.out, "[+] Analysis progress: %d%%\n", int(p.Percent))
}

// persist writes the metrics textfile and the history row when configured.
func (r *Runner) persist(ctx context.Context, res *Result) error {
	if r.cfg.MetricsFile != "" {
		if err := r.metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	if r.cfg.HistoryDB == "" {
		return nil
	}

	store, err := history.Open(ctx, r.cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Record(ctx, &history.Run{
		ID:         res.ID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Server:     r.cfg.Server,
		Version:    res.Server.Version,
		Skipped:    r.cfg.SkipAnalysis,
		Correct:    res.Report.Correct,
		Incorrect:  res.Report.Incorrect,
		Total:      res.Report.Total,
		Percent:    res.Report.Percent(),
	})
}

// lockWorkspace takes an exclusive lock next to the dump file so two runs
// never interleave their erase/start/dump steps.
func lockWorkspace(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock held: %s)", ErrRunInProgress, path)
	}
	return func() { _ = lock.Unlock() }, nil
}

// IsConfigurationError reports whether err stems from invalid settings.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
