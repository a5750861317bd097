// Package apiclient talks to the intro skipper plugin through the media
// server's REST API.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"intro-verifier/internal/dataset"
	"intro-verifier/internal/platform/metrics"

	"golang.org/x/net/http2"
)

const (
	// DefaultTaskID is the "Detect Introductions" scheduled task.
	DefaultTaskID = "8863329048cc357f7dfebf080f2fe204"

	// PluginID identifies the intro skipper plugin in /Plugins routes.
	PluginID = "c83d86bb-a1e0-4c35-a113-e2101cf4ee6b"

	defaultTimeout = 30 * time.Second
)

// Config configures a Client. Token is sent on every request.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client issues authenticated requests against one media server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Body       []byte
}

// New returns a Client for cfg. https servers are spoken to over HTTP/2.
// log and m may be nil.
func New(cfg Config, log *slog.Logger, m *metrics.Metrics) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server address %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if u.Scheme == "https" {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("configuring http2 transport: %w", err)
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		log:     log,
		metrics: m,
	}, nil
}

// Send issues method against path (relative to the server address) and
// returns the body of a 2xx response. Any other status yields *StatusError.
func (c *Client) Send(ctx context.Context, method, path string) (*Response, error) {
	return c.send(ctx, method, path, true)
}

func (c *Client) send(ctx context.Context, method, path string, logRequest bool) (*Response, error) {
	if method != http.MethodGet && method != http.MethodPost {
		return nil, &UnsupportedMethodError{Method: method}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf(`MediaBrowser Token="%s"`, c.token))
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveAPIRequest(method, 0)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading body: %w", method, path, err)
	}

	c.metrics.ObserveAPIRequest(method, resp.StatusCode)
	if logRequest {
		c.log.Debug("api request",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.Int("duration_ms", int(time.Since(start).Milliseconds())))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: body}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// EraseTimestamps clears every previously detected intro.
func (c *Client) EraseTimestamps(ctx context.Context) error {
	_, err := c.Send(ctx, http.MethodPost, "/Intros/EraseTimestamps")
	return err
}

// StartTask queues the scheduled task taskID.
func (c *Client) StartTask(ctx context.Context, taskID string) error {
	_, err := c.Send(ctx, http.MethodPost, "/ScheduledTasks/Running/"+url.PathEscape(taskID))
	return err
}

// TaskState values reported by the scheduled task API.
const (
	StateIdle    = "Idle"
	StateRunning = "Running"
)

// JobStatus is one snapshot of a scheduled task.
type JobStatus struct {
	State           string   `json:"State"`
	ProgressPercent *float64 `json:"CurrentProgressPercentage,omitempty"`
}

// TaskStatus fetches the current state of taskID. Polls are not logged.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (JobStatus, error) {
	var st JobStatus
	resp, err := c.send(ctx, http.MethodGet, "/ScheduledTasks/"+url.PathEscape(taskID), false)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(resp.Body, &st); err != nil {
		return st, fmt.Errorf("decoding task status: %w", err)
	}
	return st, nil
}

// AllIntros returns every detected intro, along with the raw body so it can be
// dumped verbatim.
func (c *Client) AllIntros(ctx context.Context) (dataset.Dataset, []byte, error) {
	resp, err := c.Send(ctx, http.MethodGet, "/Intros/All")
	if err != nil {
		return nil, nil, err
	}
	ds, err := dataset.Parse(resp.Body)
	if err != nil {
		return nil, resp.Body, fmt.Errorf("decoding /Intros/All: %w", err)
	}
	return ds, resp.Body, nil
}

// EpisodeTimestamps returns the raw per-episode payload for an API version.
// An empty version selects the server default.
func (c *Client) EpisodeTimestamps(ctx context.Context, id dataset.EpisodeID, version string) ([]byte, error) {
	path := fmt.Sprintf("/Episode/%s/IntroTimestamps/%s", url.PathEscape(string(id)), url.PathEscape(version))
	resp, err := c.send(ctx, http.MethodGet, path, false)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ServerInfo is the subset of /System/Info/Public printed in run headers.
type ServerInfo struct {
	ServerName      string `json:"ServerName"`
	Version         string `json:"Version"`
	OperatingSystem string `json:"OperatingSystem"`
	ID              string `json:"Id"`
}

// ServerInfo fetches public server information.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	resp, err := c.Send(ctx, http.MethodGet, "/System/Info/Public")
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return info, fmt.Errorf("decoding server info: %w", err)
	}
	return info, nil
}

// PluginConfiguration mirrors the plugin settings that influence analysis.
type PluginConfiguration struct {
	CacheFingerprints    bool   `json:"CacheFingerprints"`
	MaxParallelism       int    `json:"MaxParallelism"`
	SelectedLibraries    string `json:"SelectedLibraries"`
	AnalysisPercent      int    `json:"AnalysisPercent"`
	AnalysisLengthLimit  int    `json:"AnalysisLengthLimit"`
	MinimumIntroDuration int    `json:"MinimumIntroDuration"`
}

// AnalysisSettings summarises caching, parallelism and library selection.
func (pc PluginConfiguration) AnalysisSettings() string {
	libs := []string{"*"}
	if pc.SelectedLibraries != "" {
		libs = libs[:0]
		for _, l := range strings.Split(pc.SelectedLibraries, ",") {
			libs = append(libs, `"`+strings.TrimSpace(l)+`"`)
		}
	}
	return fmt.Sprintf("cfp=%t thr=%d lbs=%v", pc.CacheFingerprints, pc.MaxParallelism, libs)
}

// IntroductionRequirements summarises the limits an intro must satisfy.
func (pc PluginConfiguration) IntroductionRequirements() string {
	return fmt.Sprintf("per=%d%% max=%dm min=%ds", pc.AnalysisPercent, pc.AnalysisLengthLimit, pc.MinimumIntroDuration)
}

// PluginConfiguration fetches the plugin's saved configuration.
func (c *Client) PluginConfiguration(ctx context.Context) (PluginConfiguration, error) {
	var pc PluginConfiguration
	resp, err := c.Send(ctx, http.MethodGet, "/Plugins/"+PluginID+"/Configuration")
	if err != nil {
		return pc, err
	}
	if err := json.Unmarshal(resp.Body, &pc); err != nil {
		return pc, fmt.Errorf("decoding plugin configuration: %w", err)
	}
	return pc, nil
}
