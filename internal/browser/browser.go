// Package browser drives a real browser against the media server's web client
// to confirm the skip intro button works during playback.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// TestSkipButton is the name of the skip intro button check.
const TestSkipButton = "skip_button"

// DefaultElementTimeout bounds every element lookup.
const DefaultElementTimeout = 2 * time.Second

// ErrPaused is returned when the video is paused at a checkpoint. Playback
// should never pause while the plugin is working.
var ErrPaused = errors.New("video should not be paused")

// Target is one browser to run the checks in. An empty RemoteURL launches a
// local headless Chrome; otherwise RemoteURL is a DevTools websocket address.
type Target struct {
	Name      string
	RemoteURL string
}

// Config describes a browser check run.
type Config struct {
	Host           string
	Username       string
	Password       string
	Episode        string
	Targets        []Target
	Tests          []string
	ScreenshotDir  string
	ElementTimeout time.Duration
}

// Validate reports missing settings.
func (c Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{"host": c.Host, "username": c.Username, "episode": c.Episode} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(c.Targets) == 0 {
		missing = append(missing, "browsers")
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("browser check: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Playback is the state of the page's video element.
type Playback struct {
	Position float64 `json:"position"`
	Paused   bool    `json:"paused"`
}

const playbackJS = `(() => {
	const video = document.querySelector("video");
	return { position: video.currentTime, paused: video.paused };
})()`

// CheckPlayback returns ErrPaused if p is paused.
func CheckPlayback(p Playback) error {
	if p.Paused {
		return fmt.Errorf("%w (position %.2f)", ErrPaused, p.Position)
	}
	return nil
}

// Checker runs the configured browser checks.
type Checker struct {
	cfg Config
	log *slog.Logger
	out io.Writer

	// run executes actions against a browser context.
	run func(ctx context.Context, actions ...chromedp.Action) error
}

// New returns a Checker. Progress lines are written to out.
func New(cfg Config, log *slog.Logger, out io.Writer) *Checker {
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = DefaultElementTimeout
	}
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = "screenshots"
	}
	if len(cfg.Tests) == 0 {
		cfg.Tests = []string{TestSkipButton}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if out == nil {
		out = io.Discard
	}
	return &Checker{cfg: cfg, log: log, out: out, run: chromedp.Run}
}

// Run checks every target in turn. The first failure stops the run.
func (c *Checker) Run(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.cfg.ScreenshotDir, 0o755); err != nil {
		return fmt.Errorf("creating screenshot directory: %w", err)
	}

	for _, target := range c.cfg.Targets {
		fmt.Fprintf(c.out, "[!] Starting new test run using %s\n", target.Name)
		if err := c.runTarget(ctx, target); err != nil {
			return fmt.Errorf("%s: %w", target.Name, err)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

// runTarget owns one browser session. The session is always torn down.
func (c *Checker) runTarget(ctx context.Context, target Target) error {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if target.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, target.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
			chromedp.WindowSize(1920, 1080),
		)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	defer func() {
		if err := chromedp.Cancel(browserCtx); err != nil {
			c.log.Debug("browser cancel returned", slog.String("error", err.Error()))
		}
	}()

	url := strings.TrimRight(c.cfg.Host, "/") + "/"
	fmt.Fprintf(c.out, "[+] Navigating to %s\n", url)
	if err := c.run(browserCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating: %w", err)
	}

	fmt.Fprintf(c.out, "[+] Authenticating as %s\n", c.cfg.Username)
	if err := c.login(browserCtx); err != nil {
		return err
	}

	if slices.Contains(c.cfg.Tests, TestSkipButton) {
		fmt.Fprintln(c.out, "[+] Testing skip intro button")
		if err := c.skipButton(browserCtx); err != nil {
			return err
		}
	}

	fmt.Fprintln(c.out, "[+] All tests completed successfully")
	return nil
}

func (c *Checker) login(ctx context.Context) error {
	return c.step(ctx, "login",
		chromedp.SendKeys("#txtManualName", c.cfg.Username, chromedp.ByID),
		chromedp.SendKeys("#txtManualPassword", c.cfg.Password+kb.Enter, chromedp.ByID),
	)
}

// skipButton plays the configured episode, which must already be analysed and
// have an intro at its start, and clicks the skip button.
func (c *Checker) skipButton(ctx context.Context) error {
	fmt.Fprintf(c.out, "  [+] Searching for episode %q\n", c.cfg.Episode)
	if err := c.step(ctx, "search",
		chromedp.Click(".headerSearchButton span.search", chromedp.ByQuery),
		chromedp.SendKeys(".searchfields-txtSearch", c.cfg.Episode, chromedp.ByQuery),
		chromedp.Click(".searchResults button[data-type='Episode']", chromedp.ByQuery),
		chromedp.WaitVisible(".overview", chromedp.ByQuery),
	); err != nil {
		return err
	}

	fmt.Fprintln(c.out, "  [+] Waiting for playback to start")
	if err := c.step(ctx, "start playback",
		chromedp.Click("div.mainDetailButtons span.play_arrow", chromedp.ByQuery),
		chromedp.WaitVisible(".osdControls", chromedp.ByQuery),
	); err != nil {
		return err
	}

	fmt.Fprintln(c.out, "  [+] Playing video")
	if err := c.checkpoint(ctx, 2*time.Second, "skip_button_pre_skip"); err != nil {
		return err
	}

	fmt.Fprintln(c.out, "  [+] Clicking skip intro button")
	if err := c.step(ctx, "skip intro", chromedp.Click("div#skipIntro", chromedp.ByQuery)); err != nil {
		return err
	}
	if err := c.checkpoint(ctx, time.Second, "skip_button_post_skip"); err != nil {
		return err
	}

	fmt.Fprintln(c.out, "  [+] Verifying post skip position")
	return c.checkpoint(ctx, 4*time.Second, "skip_button_post_play")
}

// checkpoint lets the video play for wait, saves a screenshot and asserts
// playback is still running.
func (c *Checker) checkpoint(ctx context.Context, wait time.Duration, name string) error {
	var (
		shot []byte
		pb   Playback
	)
	if err := c.run(ctx,
		chromedp.Sleep(wait),
		chromedp.CaptureScreenshot(&shot),
		chromedp.Evaluate(playbackJS, &pb),
	); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	path := ScreenshotPath(c.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		return fmt.Errorf("saving screenshot: %w", err)
	}
	c.log.Debug("screenshot saved", slog.String("path", path))

	if err := CheckPlayback(pb); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Fprintf(c.out, "  [+] Video playback position: %.2f\n", pb.Position)
	return nil
}

// step runs actions in order. Each action gets its own element lookup
// timeout.
func (c *Checker) step(ctx context.Context, name string, actions ...chromedp.Action) error {
	for _, action := range actions {
		actionCtx, cancel := context.WithTimeout(ctx, c.cfg.ElementTimeout)
		err := c.run(actionCtx, action)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ScreenshotPath returns where a named screenshot is stored.
func ScreenshotPath(dir, name string) string {
	return filepath.Join(dir, name+".png")
}

// ParseTargets turns a browser list such as "chrome,remote=ws://host:9222"
// into targets. A bare name launches a local browser.
func ParseTargets(specs []string) ([]Target, error) {
	var out []Target
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		name, remote, hasRemote := strings.Cut(s, "=")
		if hasRemote && remote == "" {
			return nil, fmt.Errorf("browser %q has an empty remote address", name)
		}
		out = append(out, Target{Name: name, RemoteURL: remote})
	}
	return out, nil
}
