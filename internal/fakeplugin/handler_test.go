package fakeplugin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"intro-verifier/internal/apiclient"
	"intro-verifier/internal/dataset"

	"github.com/go-chi/chi/v5"
)

const testToken = "secret"

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	repo := NewInMemoryRepository()
	repo.RegisterTask("t1")
	svc := NewService(repo, 2, ServerInfo{ServerName: "fake", Version: "10.8.0"}, DefaultPluginConfiguration())
	svc.Seed(dataset.Dataset{"e1": {Start: 10, End: 40}})
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	r := chi.NewRouter()
	NewHandler(svc, log, testToken).Register(r)
	return r
}

func do(r http.Handler, method, path string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set("Authorization", `MediaBrowser Token="`+testToken+`"`)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_requires_token(t *testing.T) {
	r := newTestRouter(t)

	if rec := do(r, http.MethodGet, "/Intros/All", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/System/Info/Public", false); rec.Code != http.StatusOK {
		t.Errorf("server info should be public, got %d", rec.Code)
	}
}

func TestHandler_analysis_flow(t *testing.T) {
	r := newTestRouter(t)

	if rec := do(r, http.MethodPost, "/Intros/EraseTimestamps", true); rec.Code != http.StatusNoContent {
		t.Fatalf("erase: expected 204, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/ScheduledTasks/Running/t1", true); rec.Code != http.StatusNoContent {
		t.Fatalf("start: expected 204, got %d", rec.Code)
	}

	var info TaskInfo
	rec := do(r, http.MethodGet, "/ScheduledTasks/t1", true)
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.State != StateRunning || info.CurrentProgressPercentage == nil || *info.CurrentProgressPercentage != 50 {
		t.Errorf("first status: %+v", info)
	}

	rec = do(r, http.MethodGet, "/ScheduledTasks/t1", true)
	_ = json.Unmarshal(rec.Body.Bytes(), &info)
	if info.State != StateIdle {
		t.Errorf("second status: expected Idle, got %+v", info)
	}

	rec = do(r, http.MethodGet, "/Intros/All", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("all: expected 200, got %d", rec.Code)
	}
	ds, err := dataset.Parse(rec.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if ds["e1"] != (dataset.IntroInterval{Start: 10, End: 40}) {
		t.Errorf("unexpected /Intros/All: %s", rec.Body.String())
	}
}

func TestHandler_GetEpisodeIntro_versions(t *testing.T) {
	r := newTestRouter(t)
	do(r, http.MethodPost, "/ScheduledTasks/Running/t1", true)
	do(r, http.MethodGet, "/ScheduledTasks/t1", true)
	do(r, http.MethodGet, "/ScheduledTasks/t1", true)

	cases := []struct {
		name string
		path string
		want int
	}{
		{"implicit_trailing_slash", "/Episode/e1/IntroTimestamps/", http.StatusOK},
		{"implicit_no_slash", "/Episode/e1/IntroTimestamps", http.StatusOK},
		{"explicit_v1", "/Episode/e1/IntroTimestamps/v1", http.StatusOK},
		{"unsupported_version", "/Episode/e1/IntroTimestamps/v9", http.StatusBadRequest},
		{"unknown_episode", "/Episode/zz/IntroTimestamps/v1", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(r, http.MethodGet, tc.path, true); rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestHandler_unknown_task(t *testing.T) {
	r := newTestRouter(t)

	if rec := do(r, http.MethodPost, "/ScheduledTasks/Running/nope", true); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/ScheduledTasks/nope", true); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetConfiguration(t *testing.T) {
	r := newTestRouter(t)

	rec := do(r, http.MethodGet, "/Plugins/"+apiclient.PluginID+"/Configuration", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cfg PluginConfiguration
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.MinimumIntroDuration != 15 {
		t.Errorf("unexpected configuration %+v", cfg)
	}

	if rec := do(r, http.MethodGet, "/Plugins/other/Configuration", true); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another plugin, got %d", rec.Code)
	}
}

func TestHandler_GetConfiguration_client_roundtrip(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t))
	defer srv.Close()

	client, err := apiclient.New(apiclient.Config{BaseURL: srv.URL, Token: testToken}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	pc, err := client.PluginConfiguration(context.Background())
	if err != nil {
		t.Fatalf("client and server should agree on the plugin id: %v", err)
	}
	if pc.MinimumIntroDuration != 15 {
		t.Errorf("unexpected configuration %+v", pc)
	}

	if rec := do(newTestRouter(t), http.MethodGet, "/Plugins/other/Configuration", true); rec.Code != http.StatusNotFound {
		t.Errorf("unknown plugin id: expected 404, got %d", rec.Code)
	}
}
