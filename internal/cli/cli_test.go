package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"intro-verifier/internal/apiclient"
	"intro-verifier/internal/dataset"
	"intro-verifier/internal/fakeplugin"
	"intro-verifier/internal/harness"
	"intro-verifier/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"configuration", &harness.ConfigurationError{Reason: "x"}, ExitConfiguration},
		{"wrapped_configuration", fmt.Errorf("outer: %w", &harness.ConfigurationError{Reason: "x"}), ExitConfiguration},
		{"below_threshold", fmt.Errorf("%w: 10%%", harness.ErrBelowThreshold), ExitBelowMinimum},
		{"status", &apiclient.StatusError{Method: "GET", Path: "/", StatusCode: 500}, ExitFailure},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Errorf("ExitCode = %d, want %d", got, tc.want)
			}
		})
	}
}

// env isolates a test from real config files and tokens.
type env struct {
	dir     string
	envFile string
	server  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JELLYFIN_TOKEN", "secret")

	repo := fakeplugin.NewInMemoryRepository()
	repo.RegisterTask(apiclient.DefaultTaskID)
	svc := fakeplugin.NewService(repo, 2, fakeplugin.ServerInfo{ServerName: "fake", Version: "10.8.0"}, fakeplugin.DefaultPluginConfiguration())
	svc.Seed(dataset.Dataset{
		"e1": {Start: 10, End: 40},
		"e2": {Start: 0, End: 20},
	})
	r := chi.NewRouter()
	fakeplugin.NewHandler(svc, logger.Discard(), "secret").Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &env{dir: dir, envFile: envFile, server: srv.URL}
}

func (e *env) write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *env) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	base := []string{args[0], "--config", filepath.Join(e.dir, "absent.toml"), "--env-file", e.envFile, "--log-level", "error"}
	code := run(context.Background(), root, append(base, args[1:]...), &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *env) verifyArgs(t *testing.T, expected string, extra ...string) []string {
	t.Helper()
	args := []string{"verify",
		"--server", e.server,
		"--poll", "1ms",
		"--expected", e.write(t, "expected.json", expected),
		"--dump", filepath.Join(e.dir, "actual.json"),
	}
	return append(args, extra...)
}

func TestVerify_success(t *testing.T) {
	e := newEnv(t)
	code, out, stderr := e.run(e.verifyArgs(t, `{"e1": {"IntroStart": 10.5, "IntroEnd": 39}}`, "--history-db", filepath.Join(e.dir, "runs.db"))...)

	if code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(out, "Correct:   1 (100%)") {
		t.Errorf("unexpected report:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "actual.json")); err != nil {
		t.Errorf("dump not written: %v", err)
	}

	code, out, _ = e.run("history", "--history-db", filepath.Join(e.dir, "runs.db"))
	if code != ExitOK || !strings.Contains(out, "100.0%") {
		t.Errorf("history exit %d:\n%s", code, out)
	}
}

func TestVerifyFlags_poll_accepts_bare_seconds(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"10", 10 * time.Second},
		{"1ms", time.Millisecond},
		{"2m", 2 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			cmd := newVerifyCmd(&globalOptions{})
			if err := cmd.ParseFlags([]string{"-f", tc.in, "--max-wait", tc.in}); err != nil {
				t.Fatalf("parsing %q: %v", tc.in, err)
			}
			for _, name := range []string{"poll", "max-wait"} {
				if got := cmd.Flags().Lookup(name).Value.String(); got != tc.want.String() {
					t.Errorf("--%s = %s, want %v", name, got, tc.want)
				}
			}
		})
	}

	cmd := newVerifyCmd(&globalOptions{})
	if err := cmd.ParseFlags([]string{"--poll", "soon"}); err == nil {
		t.Error("expected an error for an unparsable interval")
	}
	if got := cmd.Flags().Lookup("poll").DefValue; got != harness.DefaultPollInterval.String() {
		t.Errorf("default shown as %q", got)
	}
}

func TestVerify_missing_token(t *testing.T) {
	e := newEnv(t)
	t.Setenv("JELLYFIN_TOKEN", "")

	code, _, stderr := e.run(e.verifyArgs(t, `{"e1": {"IntroStart": 10, "IntroEnd": 40}}`)...)
	if code != ExitConfiguration {
		t.Errorf("exit %d, want %d; stderr:\n%s", code, ExitConfiguration, stderr)
	}
	if !strings.Contains(stderr, "JELLYFIN_TOKEN") {
		t.Errorf("error should name the missing credential:\n%s", stderr)
	}
}

func TestVerify_below_min_accuracy(t *testing.T) {
	e := newEnv(t)
	expected := `{
		"e1": {"IntroStart": 10, "IntroEnd": 40},
		"e3": {"IntroStart": 10, "IntroEnd": 40}
	}`
	code, out, _ := e.run(e.verifyArgs(t, expected, "--min-accuracy", "75", "--sample-size", "0")...)

	if code != ExitBelowMinimum {
		t.Errorf("exit %d, want %d", code, ExitBelowMinimum)
	}
	if !strings.Contains(out, "Correct:   1 (50%)") {
		t.Errorf("report should still be printed:\n%s", out)
	}
}

func TestSchema(t *testing.T) {
	e := newEnv(t)
	if code, _, stderr := e.run(e.verifyArgs(t, `{"e1": {"IntroStart": 10, "IntroEnd": 40}}`)...); code != ExitOK {
		t.Fatalf("setup verify failed: %s", stderr)
	}

	code, out, stderr := e.run("schema", "--server", e.server, "--ids", "e1")
	if code != ExitOK {
		t.Fatalf("exit %d:\n%s\n%s", code, out, stderr)
	}
	if strings.Count(out, "valid") != 2 {
		t.Errorf("expected both variants valid:\n%s", out)
	}

	if code, _, _ := e.run("schema", "--server", e.server, "--ids", "nope"); code != ExitFailure {
		t.Errorf("unknown id: exit %d, want %d", code, ExitFailure)
	}
}

func TestDiff(t *testing.T) {
	e := newEnv(t)
	prev := e.write(t, "old.json", `{"a": {"IntroStart": 10, "IntroEnd": 40}, "b": {"IntroStart": 0, "IntroEnd": 30}}`)
	cur := e.write(t, "new.json", `[{"EpisodeId": "a", "IntroStart": 30, "IntroEnd": 60}, {"EpisodeId": "c", "IntroStart": 0, "IntroEnd": 20}]`)

	code, out, stderr := e.run("diff", prev, cur)
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"different", "only_previous", "improvement"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) == 2 && f[0] == "okay:" && f[1] != "0" {
			t.Errorf("no episode should be okay: %q", line)
		}
	}

	if code, _, _ := e.run("diff", prev); code != ExitFailure {
		t.Errorf("diff with one argument: exit %d", code)
	}
}

func TestHistory_empty(t *testing.T) {
	e := newEnv(t)
	code, out, _ := e.run("history", "--history-db", filepath.Join(e.dir, "empty.db"))
	if code != ExitOK || !strings.Contains(out, "No runs recorded") {
		t.Errorf("exit %d:\n%s", code, out)
	}
}

func TestBrowser_requires_settings(t *testing.T) {
	e := newEnv(t)
	code, _, stderr := e.run("browser", "--host", "http://127.0.0.1:1")
	if code != ExitFailure || !strings.Contains(stderr, "missing") {
		t.Errorf("exit %d:\n%s", code, stderr)
	}
}
