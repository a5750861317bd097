package fakeplugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"intro-verifier/internal/apiclient"
	"intro-verifier/internal/dataset"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the plugin's HTTP endpoints using go-chi.
type Handler struct {
	svc   *Service
	log   *slog.Logger
	token string
}

// NewHandler returns a Handler serving svc. When token is non-empty every
// route except public server info requires it.
func NewHandler(svc *Service, log *slog.Logger, token string) *Handler {
	return &Handler{svc: svc, log: log, token: token}
}

// Register mounts every route on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/System/Info/Public", h.GetServerInfo)
	r.Group(func(r chi.Router) {
		r.Use(h.requireToken)
		r.Post("/Intros/EraseTimestamps", h.EraseTimestamps)
		r.Get("/Intros/All", h.GetAllIntros)
		r.Post("/ScheduledTasks/Running/{task_id}", h.StartTask)
		r.Get("/ScheduledTasks/{task_id}", h.GetTask)
		r.Get("/Episode/{episode_id}/IntroTimestamps", h.GetEpisodeIntro)
		r.Get("/Episode/{episode_id}/IntroTimestamps/", h.GetEpisodeIntro)
		r.Get("/Episode/{episode_id}/IntroTimestamps/{version}", h.GetEpisodeIntro)
		r.Get("/Plugins/{plugin_id}/Configuration", h.GetConfiguration)
	})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	want := fmt.Sprintf(`MediaBrowser Token="%s"`, h.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && r.Header.Get("Authorization") != want {
			h.log.Info("request rejected missing or wrong token", slog.String("path", r.URL.Path))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EraseTimestamps handles POST /Intros/EraseTimestamps.
func (h *Handler) EraseTimestamps(w http.ResponseWriter, r *http.Request) {
	h.svc.EraseTimestamps()
	h.log.Info("timestamps erased")
	w.WriteHeader(http.StatusNoContent)
}

// StartTask handles POST /ScheduledTasks/Running/{task_id}.
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	taskID := TaskID(chi.URLParam(r, "task_id"))
	if err := h.svc.StartTask(taskID); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("task started", slog.String("task_id", string(taskID)))
	w.WriteHeader(http.StatusNoContent)
}

// GetTask handles GET /ScheduledTasks/{task_id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := TaskID(chi.URLParam(r, "task_id"))
	info, err := h.svc.TaskStatus(taskID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, info)
}

// GetAllIntros handles GET /Intros/All.
func (h *Handler) GetAllIntros(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.AllIntros())
}

// GetEpisodeIntro handles GET /Episode/{episode_id}/IntroTimestamps/{version}.
// The version segment is optional.
func (h *Handler) GetEpisodeIntro(w http.ResponseWriter, r *http.Request) {
	id := dataset.EpisodeID(chi.URLParam(r, "episode_id"))
	version := chi.URLParam(r, "version")

	intro, err := h.svc.EpisodeIntro(id, version)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, intro)
}

// GetServerInfo handles GET /System/Info/Public.
func (h *Handler) GetServerInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.ServerInfo())
}

// GetConfiguration handles GET /Plugins/{plugin_id}/Configuration.
func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "plugin_id") != apiclient.PluginID {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, h.svc.Configuration())
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrEpisodeNotFound), errors.Is(err, ErrNoIntro):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrUnsupportedVersion):
		w.WriteHeader(http.StatusBadRequest)
	default:
		h.log.Error("request failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encoding response failed", slog.String("error", err.Error()))
	}
}
