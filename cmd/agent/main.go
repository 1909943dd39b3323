package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/finsight/finsight/internal/api"
	"github.com/finsight/finsight/internal/cache"
	"github.com/finsight/finsight/internal/marketdata"
	"github.com/finsight/finsight/internal/monitoring"
	"github.com/finsight/finsight/pkg/config"
	"github.com/finsight/finsight/pkg/logging"
	"github.com/finsight/finsight/pkg/metrics"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "finsight",
		Version:     version(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	prom := metrics.NewMetrics(metrics.DefaultConfig())

	// Process-wide monitoring context, passed by reference to consumers
	monitor := monitoring.NewService(&monitoring.Config{
		HealthySuccessRate: cfg.Monitoring.HealthySuccessRate,
		AlertSuccessRate:   cfg.Monitoring.AlertSuccessRate,
		MinRequestsToAlert: cfg.Monitoring.MinRequestsToAlert,
		CheckInterval:      cfg.Monitoring.CheckInterval,
	}, prom)

	readCache, err := cache.NewService(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to create cache service: %v", err)
	}
	defer readCache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := readCache.Health(ctx); err != nil {
		logger.Warn("Redis unavailable, running without read cache", "error", err.Error())
		monitor.UpdateHealthStatus("redis", monitoring.StateDegraded, "redis unavailable", nil)
	} else {
		monitor.UpdateHealthStatus("redis", monitoring.StateHealthy, "connected", nil)
	}
	cancel()

	client := marketdata.NewClient(&cfg.MarketData)

	// Repositories register their breakers with the monitor at construction
	repos := &api.Repositories{
		Quotes:          marketdata.NewQuoteRepository(client, readCache, monitor, cfg),
		Recommendations: marketdata.NewRecommendationRepository(client, readCache, monitor, cfg),
		News:            marketdata.NewNewsRepository(client, readCache, monitor, cfg),
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	monitor.Start(rootCtx)
	defer monitor.Stop()

	router := api.SetupRoutes(cfg, monitor, prom, repos)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting status server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error())
	}
}

func version() string {
	if v := os.Getenv("FINSIGHT_VERSION"); v != "" {
		return v
	}
	return "dev"
}
