package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/samsmart/pd-boxes/internal/api/http"
	"github.com/samsmart/pd-boxes/internal/config"
	"github.com/samsmart/pd-boxes/internal/scheduler"
	"github.com/samsmart/pd-boxes/internal/store"
	"github.com/samsmart/pd-boxes/internal/telemetry"
	"github.com/samsmart/pd-boxes/internal/telemetry/openinc"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The households declaration is validated eagerly; bad interval data
	// is fatal here, never at query time.
	households, err := config.LoadHouseholds(cfg.HouseholdsFile)
	if err != nil {
		log.Fatalf("failed to load households file: %v", err)
	}
	registry, err := telemetry.NewRegistry(households.Sensors, households.Timeframes,
		telemetry.WithTagExceptions(households.TagExceptions))
	if err != nil {
		log.Fatalf("invalid households configuration: %v", err)
	}

	// Shared HTTP client for outbound open.INC calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	source := openinc.NewClient(httpClient, cfg.BaseURL, cfg.Session)

	// In-memory store with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	// Core service tying registry, source and store together.
	service := telemetry.NewService(registry, source, memStore)

	// Scheduler that periodically refreshes current readings.
	sched := scheduler.New(cfg.RefreshInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "pd-boxes",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "pd-boxes",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
