package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intro-verifier/internal/apiclient"
	"intro-verifier/internal/dataset"
	"intro-verifier/internal/fakeplugin"
	"intro-verifier/internal/platform/config"
	"intro-verifier/internal/platform/logger"
	"intro-verifier/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8096")
	token := config.GetEnv("JELLYFIN_TOKEN", "")
	steps := config.GetEnvInt("FAKE_TASK_STEPS", fakeplugin.DefaultSteps)
	introsFile := config.GetEnv("FAKE_INTROS_FILE", "")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	repo := fakeplugin.NewInMemoryRepository()
	repo.RegisterTask(apiclient.DefaultTaskID)
	info := fakeplugin.ServerInfo{
		ServerName:      "fakeplugin",
		Version:         "10.8.0",
		OperatingSystem: "Linux",
		ID:              uuid.NewString(),
	}
	svc := fakeplugin.NewService(repo, steps, info, fakeplugin.DefaultPluginConfiguration())

	if introsFile != "" {
		ds, err := dataset.LoadExpected(introsFile)
		if err != nil {
			log.Error("loading library", "error", err)
			os.Exit(1)
		}
		svc.Seed(ds)
		log.Info("library loaded", "episodes", len(ds), "file", introsFile)
	}

	met := metrics.New()
	h := fakeplugin.NewHandler(svc, log, token)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log, "/ScheduledTasks/", "/Episode/"))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Method(http.MethodGet, "/metrics", met.Handler(nil))
	h.Register(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("fake plugin starting",
		"port", port,
		"task_steps", steps,
		"auth", token != "",
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
