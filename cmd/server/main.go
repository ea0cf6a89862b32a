package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/attackmode"
	"github.com/nshruti113/ddos-defense-dashboard/internal/backend"
	"github.com/nshruti113/ddos-defense-dashboard/internal/config"
	"github.com/nshruti113/ddos-defense-dashboard/internal/hub"
	"github.com/nshruti113/ddos-defense-dashboard/internal/logging"
	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
	"github.com/nshruti113/ddos-defense-dashboard/internal/poller"
	"github.com/nshruti113/ddos-defense-dashboard/internal/server"
	"github.com/nshruti113/ddos-defense-dashboard/internal/simulation"
	"github.com/nshruti113/ddos-defense-dashboard/internal/storage"
	"github.com/nshruti113/ddos-defense-dashboard/internal/training"
)

func main() {
	var (
		configFile = flag.String("config", "configs/dashboard.yaml", "Configuration file path (YAML)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		cfg = config.DefaultConfig()
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("🚀 Starting DDoS Defense Dashboard Server...")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.BackendTimeout(), logger)
	logger.Infof("Detection backend: %s (feed %s)", client.BaseURL(), cfg.Backend.FeedURL)

	// Redis keeps alert history; the dashboard runs without it
	var (
		recorder simulation.AlertRecorder
		history  server.AlertHistory
	)
	if cfg.Redis.Enabled {
		store, err := storage.NewAlertHistory(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.HistorySize)
		if err != nil {
			logger.Warnf("Redis unavailable at %s, alert history disabled: %v", cfg.Redis.Addr, err)
		} else {
			defer store.Close()
			recorder, history = store, store
			logger.Infof("Connected to Redis at %s", cfg.Redis.Addr)
		}
	}

	runs, err := storage.OpenRunStore(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("Failed to open training run store %s: %v", cfg.Database.Path, err)
	}
	defer runs.Close()

	controller := attackmode.NewController(logger)
	dashboardHub := hub.New(logger, m, originChecker(cfg.Server.AllowedOrigins))

	session := simulation.NewSession(controller, client, recorder, dashboardHub, simulation.Options{
		FeedURL:       cfg.Backend.FeedURL,
		DialTimeout:   cfg.DialTimeout(),
		TickInterval:  cfg.TickInterval(),
		AlertTTL:      cfg.AlertTTL(),
		AlertCapacity: cfg.Simulation.AlertCapacity,
	}, logger, m)
	dashboardHub.OnConnect(session.Snapshot)

	panels := poller.NewGroup(
		poller.New[[]models.SystemMetric]("metrics", cfg.PollInterval("metrics"), client.Metrics, logger, m),
		poller.New[[]models.PipelineStage]("pipeline", cfg.PollInterval("pipeline"), client.Pipeline, logger, m),
		poller.New[[]models.ServiceStatus]("services", cfg.PollInterval("services"), client.Services, logger, m),
		poller.New[[]models.LogEntry]("logs", cfg.PollInterval("logs"), client.Logs, logger, m),
		poller.New[[]models.SystemAlert]("alerts", cfg.PollInterval("alerts"), client.Alerts, logger, m),
		poller.New[[]models.LoggedAlert]("alerts-log", cfg.PollInterval("alerts-log"), client.AlertsLog, logger, m),
	)
	panels.Start(context.Background())

	// Train is bounded by the job timeout, not the per-call one
	tracker := training.NewTracker(client, runs, cfg.TrainTimeout(), logger, m)

	api := server.New(server.Deps{
		Config:     cfg,
		Controller: controller,
		Session:    session,
		Backend:    client,
		Tracker:    tracker,
		Panels:     panels,
		Hub:        dashboardHub,
		History:    history,
		Runs:       runs,
		Gatherer:   reg,
		Logger:     logger,
	})

	// No WriteTimeout: event streams and websockets stay open
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down dashboard server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	logger.Infof("Server listening on :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}

	shutdown(logger, session, panels, tracker, dashboardHub)
}

func shutdown(logger *logrus.Logger, session *simulation.Session, panels *poller.Group, tracker *training.Tracker, h *hub.Hub) {
	session.Close()
	panels.Stop()
	tracker.Close()
	h.Close()
	logger.Info("Dashboard server stopped")
}

// originChecker admits websocket upgrades from the configured origins, or
// from anywhere when none are configured
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
