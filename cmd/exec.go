package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-queue/config"
	"clinic-queue/handlers"
	"clinic-queue/monitoring"
	"clinic-queue/security"
	"clinic-queue/services"
	"clinic-queue/utils"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Start() error {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	persistence := services.NewRedisStore(redisClient)
	monitor := monitoring.NewMonitor()

	// Initialize services
	registry := services.NewRegistry(cfg.SendBufferSize)
	queueStore := services.NewQueueStore(cfg, persistence, monitor)
	notifier := services.NewPubNubNotifier(cfg)
	router := services.NewRouter(registry, queueStore, cfg, monitor, notifier)
	dispatcher := services.NewDispatcher(registry, queueStore, router, persistence,
		services.StaticVerifier{}, cfg, monitor)
	maintenance := services.NewMaintenance(registry, queueStore, router, dispatcher, cfg, monitor)
	monitor.SetSource(maintenance)

	// Restore queue state before accepting any traffic
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer loadCancel()
	if err := queueStore.Load(loadCtx); err != nil {
		return err
	}

	// Start the liveness sweep
	maintenance.Start()

	// Initialize handlers
	socketHandler := handlers.NewQueueSocketHandler(registry, dispatcher, cfg)
	rateLimiter := security.NewRateLimiter(redisClient)

	e := echo.New()
	e.Use(rateLimiter.ConnectRateLimit())
	e.Use(rateLimiter.AntiBotMiddleware())

	e.GET("/ws/queue", socketHandler.Serve)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(503, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]any{
			"status":  "healthy",
			"metrics": maintenance.Metrics(),
		})
	})

	// Prometheus metrics on a separate listener
	if cfg.EnableMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics server listening on :%s", cfg.MetricsPort)
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil && err != http.ErrServerClosed {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Queue server listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Printf("Shutdown signal received (%v), cleaning up...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting traffic, then flush queue state synchronously.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := maintenance.Shutdown(shutdownCtx); err != nil {
		log.Printf("Queue flush error: %v", err)
	}
	monitor.Stop()

	return nil
}
