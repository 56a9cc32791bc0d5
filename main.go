package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-cache/internal/cache"
	"media-cache/internal/config"
	"media-cache/internal/index"
	"media-cache/internal/logging"
	"media-cache/internal/pipeline"
	"media-cache/internal/probe"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err == nil {
		logging.Debug("loaded environment from .env")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	sources := os.Args[1:]
	if len(sources) == 0 {
		logging.Fatal("usage: media-cache <source file> [source file...]")
	}

	ctx := context.Background()

	var manifest cache.Manifest
	if cfg.ManifestPath != "" {
		store, err := index.Open(ctx, cfg.ManifestPath)
		if err != nil {
			logging.Fatal("Failed to open cache manifest: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Warn("Failed to close cache manifest: %v", err)
			}
		}()
		manifest = store
	}

	caps := pipeline.DetectCaps(ctx, cfg.FFmpegPath)
	if cfg.HardwareAccel == "off" {
		caps.HardwareProRes = false
	}
	logging.Info("Encoder capabilities: hardware=%v software=%v aac=%v",
		caps.HardwareProRes, caps.SoftwareProRes, caps.AAC)

	prober := &probe.Prober{Binary: cfg.FFprobePath, Timeout: cfg.ProbeTimeout}
	engine := pipeline.NewEngine(cfg.FFmpegPath, prober, caps)

	manager, err := cache.New(cache.Config{
		Root:           cfg.CacheRoot,
		MaxConcurrency: cfg.MaxJobs,
		Transcoder:     engine,
		Manifest:       manifest,
	})
	if err != nil {
		logging.Fatal("Failed to initialize cache manager: %v", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	events, unsub := manager.Subscribe()
	defer unsub()

	pending := make(map[cache.JobID]string, len(sources))
	for _, source := range sources {
		id := manager.Submit(cache.JobSpec{
			SourcePath:     source,
			PreferredCodec: pipeline.CodecProRes422,
		})
		pending[id] = source
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	failures := 0
	for len(pending) > 0 {
		select {
		case sig := <-sigChan:
			logging.Info("Received %s, canceling %d remaining jobs", sig, len(pending))
			for id := range pending {
				manager.Cancel(id)
			}
		case ev := <-events:
			source, ok := pending[ev.JobID]
			if !ok {
				continue
			}
			switch ev.Status.State {
			case cache.StateInProgress:
				logging.Debug("job %d: %s %.0f%%", ev.JobID, source, ev.Status.Progress*100)
			case cache.StateCompleted:
				logging.Info("job %d done: %s -> %s", ev.JobID, source, ev.Status.OutputPath)
				delete(pending, ev.JobID)
			case cache.StateFailed:
				logging.Error("job %d failed: %s: %s", ev.JobID, source, ev.Status.Message)
				failures++
				delete(pending, ev.JobID)
			case cache.StateCanceled:
				logging.Info("job %d canceled: %s", ev.JobID, source)
				delete(pending, ev.JobID)
			}
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
}

// serveMetrics exposes Prometheus metrics and a liveness endpoint on a
// sidecar listener.
func serveMetrics(addr string) {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logging.Debug("healthz write failed: %v", err)
		}
	}).Methods("GET")

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logging.Info("Metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error("Metrics server error: %v", err)
	}
}
