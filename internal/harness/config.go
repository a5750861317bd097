package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"intro-verifier/internal/apiclient"
	"intro-verifier/internal/platform/config"
)

// Config holds every setting of a verification run. It is built once and
// passed to the components that need it.
type Config struct {
	Server         string
	Token          string
	TaskID         string
	PollInterval   time.Duration
	MaxWait        time.Duration
	RequestTimeout time.Duration
	ExpectedFile   string
	SkipAnalysis   bool
	SampleSize     int
	Strict         bool
	DumpPath       string
	MetricsFile    string
	HistoryDB      string
	MinAccuracy    float64
}

// Defaults.
const (
	DefaultServer       = "http://127.0.0.1:8096"
	DefaultPollInterval = 10 * time.Second
	DefaultMaxWait      = time.Hour
	DefaultSampleSize   = 10
	DefaultDumpPath     = "/tmp/actual.json"
	DefaultExpectedFile = "expected.json"
)

// DefaultConfig returns a Config populated with defaults only.
func DefaultConfig() Config {
	return Config{
		Server:         DefaultServer,
		TaskID:         apiclient.DefaultTaskID,
		PollInterval:   DefaultPollInterval,
		MaxWait:        DefaultMaxWait,
		RequestTimeout: 30 * time.Second,
		ExpectedFile:   DefaultExpectedFile,
		SampleSize:     DefaultSampleSize,
		DumpPath:       DefaultDumpPath,
	}
}

// fileConfig is the TOML shape of a config file. Durations are strings such
// as "10s".
type fileConfig struct {
	Server         string   `toml:"server"`
	TaskID         string   `toml:"task_id"`
	PollInterval   string   `toml:"poll_interval"`
	MaxWait        string   `toml:"max_wait"`
	RequestTimeout string   `toml:"request_timeout"`
	ExpectedFile   string   `toml:"expected_file"`
	SkipAnalysis   *bool    `toml:"skip_analysis"`
	SampleSize     *int     `toml:"sample_size"`
	Strict         *bool    `toml:"strict"`
	DumpPath       string   `toml:"dump_path"`
	MetricsFile    string   `toml:"metrics_file"`
	HistoryDB      string   `toml:"history_db"`
	MinAccuracy    *float64 `toml:"min_accuracy"`
}

// LoadConfig layers defaults, the optional TOML file at path and the
// environment, in that order. The token is only ever read from the
// environment (or .env). CLI flags are applied by the caller afterwards.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var fc fileConfig
	if _, err := config.LoadFile(path, &fc); err != nil {
		return cfg, &ConfigurationError{Reason: "config file", Err: err}
	}
	if err := fc.apply(&cfg); err != nil {
		return cfg, &ConfigurationError{Reason: "config file " + path, Err: err}
	}

	cfg.Token = config.GetEnv("JELLYFIN_TOKEN", cfg.Token)
	cfg.Server = config.GetEnv("JELLYFIN_SERVER", cfg.Server)
	cfg.TaskID = config.GetEnv("INTRO_TASK_ID", cfg.TaskID)
	cfg.PollInterval = config.GetEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.MaxWait = config.GetEnvDuration("MAX_WAIT", cfg.MaxWait)
	cfg.RequestTimeout = config.GetEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ExpectedFile = config.GetEnv("EXPECTED_FILE", cfg.ExpectedFile)
	cfg.SkipAnalysis = config.GetEnvBool("SKIP_ANALYSIS", cfg.SkipAnalysis)
	cfg.SampleSize = config.GetEnvInt("SAMPLE_SIZE", cfg.SampleSize)
	cfg.Strict = config.GetEnvBool("STRICT_SAMPLING", cfg.Strict)
	cfg.DumpPath = config.GetEnv("DUMP_PATH", cfg.DumpPath)
	cfg.MetricsFile = config.GetEnv("METRICS_FILE", cfg.MetricsFile)
	cfg.HistoryDB = config.GetEnv("HISTORY_DB", cfg.HistoryDB)
	cfg.MinAccuracy = config.GetEnvFloat("MIN_ACCURACY", cfg.MinAccuracy)

	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, name, v string) error {
		if v == "" {
			return nil
		}
		d, err := config.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
		return nil
	}

	setString(&cfg.Server, fc.Server)
	setString(&cfg.TaskID, fc.TaskID)
	setString(&cfg.ExpectedFile, fc.ExpectedFile)
	setString(&cfg.DumpPath, fc.DumpPath)
	setString(&cfg.MetricsFile, fc.MetricsFile)
	setString(&cfg.HistoryDB, fc.HistoryDB)
	if err := setDuration(&cfg.PollInterval, "poll_interval", fc.PollInterval); err != nil {
		return err
	}
	if err := setDuration(&cfg.MaxWait, "max_wait", fc.MaxWait); err != nil {
		return err
	}
	if err := setDuration(&cfg.RequestTimeout, "request_timeout", fc.RequestTimeout); err != nil {
		return err
	}
	if fc.SkipAnalysis != nil {
		cfg.SkipAnalysis = *fc.SkipAnalysis
	}
	if fc.SampleSize != nil {
		cfg.SampleSize = *fc.SampleSize
	}
	if fc.Strict != nil {
		cfg.Strict = *fc.Strict
	}
	if fc.MinAccuracy != nil {
		cfg.MinAccuracy = *fc.MinAccuracy
	}
	return nil
}

// Validate reports the first invalid setting as a *ConfigurationError.
func (c Config) Validate() error {
	switch {
	case c.Token == "":
		return &ConfigurationError{Reason: "JELLYFIN_TOKEN is not set"}
	case c.ExpectedFile == "":
		return &ConfigurationError{Reason: "no expected dataset file"}
	case c.DumpPath == "":
		return &ConfigurationError{Reason: "no dump path"}
	case c.TaskID == "":
		return &ConfigurationError{Reason: "no task id"}
	case c.PollInterval < 0:
		return &ConfigurationError{Reason: fmt.Sprintf("negative poll interval %s", c.PollInterval)}
	case c.MinAccuracy < 0 || c.MinAccuracy > 100:
		return &ConfigurationError{Reason: fmt.Sprintf("min accuracy %g is outside 0-100", c.MinAccuracy)}
	}
	u, err := url.Parse(c.Server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{Reason: fmt.Sprintf("invalid server address %q", c.Server)}
	}
	return nil
}

// LogValue implements slog.LogValuer. The token is redacted.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("server", c.Server),
		slog.String("token", redact(c.Token)),
		slog.String("task_id", c.TaskID),
		slog.Duration("poll_interval", c.PollInterval),
		slog.Duration("max_wait", c.MaxWait),
		slog.String("expected_file", c.ExpectedFile),
		slog.Bool("skip_analysis", c.SkipAnalysis),
		slog.Int("sample_size", c.SampleSize),
		slog.Bool("strict", c.Strict),
		slog.String("dump_path", c.DumpPath),
	)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "<redacted>"
}

// ConfigurationError is a fatal problem detected before any network activity.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

var (
	// ErrBelowThreshold is returned when accuracy is under the configured minimum.
	ErrBelowThreshold = errors.New("accuracy below threshold")

	// ErrRunInProgress is returned when another run holds the workspace lock.
	ErrRunInProgress = errors.New("another verification run is in progress")
)
