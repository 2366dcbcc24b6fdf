// Magpie - behavioral segmentation and campaign what-if service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensegment/magpie/internal/api"
	"github.com/opensegment/magpie/internal/audience"
	"github.com/opensegment/magpie/internal/bus"
	"github.com/opensegment/magpie/internal/cache"
	"github.com/opensegment/magpie/internal/config"
	"github.com/opensegment/magpie/internal/repository"
	"github.com/opensegment/magpie/internal/schedule"
	"github.com/opensegment/magpie/internal/segments"
	"github.com/opensegment/magpie/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration first; the log level comes from it.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(newLogHandler(cfg.Logging.Format, cfg.Logging.Level))
	slog.SetDefault(logger)

	slog.Info("starting magpie",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"window_days", cfg.Refresh.WindowDays,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize audience filter engine
	selector, err := audience.NewEngine(cfg.Refresh.MaxWorkers)
	if err != nil {
		slog.Error("failed to initialize audience engine", "error", err)
		os.Exit(1)
	}

	// Initialize segmentation service with scenario sweeper
	sweeper := worker.NewSweeper(cfg.Refresh.MaxWorkers)
	svc := segments.NewService(repo, cacheImpl, busImpl, selector, sweeper, cfg.Refresh.WindowDays)
	slog.Info("segmentation service initialized", "max_workers", cfg.Refresh.MaxWorkers)

	// Async refresh worker consumes requests from the bus
	asyncWorker := worker.NewWorker(busImpl, svc)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start refresh worker", "error", err)
		os.Exit(1)
	}

	// Scheduled refreshes (disabled when no cron spec is set)
	scheduler := schedule.NewScheduler()
	if err := scheduler.AddRefreshJob(cfg.Refresh.Cron, svc); err != nil {
		slog.Error("failed to schedule refresh", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("magpie is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg.Server.Host, cfg.Server.Port, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	scheduler.Stop()
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop refresh worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("magpie shutdown complete")
}

// newLogHandler builds the slog handler from the logging config.
func newLogHandler(format, level string) slog.Handler {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func printBanner(host string, port int, version string) {
	fmt.Println()
	fmt.Println("  MAGPIE - Customer Segmentation & Campaign What-If Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", host, port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /datasets                 - Load customers and events")
	fmt.Println("    POST /segmentation/refresh     - Rebuild features and personas")
	fmt.Println("    GET  /snapshots/latest         - Latest segmentation run")
	fmt.Println("    GET  /features/{customerID}    - Feature vector for a customer")
	fmt.Println("    GET  /personas/{customerID}    - Persona assigned to a customer")
	fmt.Println("    GET  /segments                 - Persona segment summaries")
	fmt.Println("    POST /segments/preview         - Preview an audience filter")
	fmt.Println("    POST /simulate                 - Score a campaign scenario")
	fmt.Println("    POST /simulate/sweep           - Score a scenario grid")
	fmt.Println("    GET  /journeys/{persona}       - Journey template for a persona")
	fmt.Println("    GET  /briefs/{persona}         - Markdown strategy brief")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
