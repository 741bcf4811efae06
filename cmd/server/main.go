// Package main is the entry point of the scan-and-pay API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrpay/internal/config"
	"qrpay/internal/handlers"
	"qrpay/internal/repositories"
	"qrpay/internal/repositories/cache"
	"qrpay/internal/routes"
	"qrpay/internal/services/camera"
	"qrpay/internal/services/qr"
	"qrpay/internal/services/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log.SetLevel(config.ParseLogLevel(cfg.LogLevel))

	db, err := repositories.InitDB(cfg.DB)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer repositories.CloseDB(db)

	if !config.IsProduction() {
		if err := repositories.AutoMigrate(db); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get database instance: %v", err)
	}
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			stats := sqlDB.Stats()
			log.Debugf("DB Stats: Open=%d, Idle=%d, InUse=%d, WaitCount=%d, WaitDuration=%s",
				stats.OpenConnections, stats.Idle, stats.InUse, stats.WaitCount, stats.WaitDuration)
		}
	}()

	redisClient := cache.NewRedisClient(cfg.Redis)
	cacheService := cache.NewCacheService(redisClient, cfg.RegistryCacheTTL)
	defer func() {
		if err := cacheService.Close(); err != nil {
			log.Warnf("failed to close Redis connection: %v", err)
		}
	}()
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := cacheService.HealthCheck(pingCtx); err != nil {
		log.Warnf("redis unavailable, registry cache and request guard degrade to pass-through: %v", err)
	} else {
		log.Info("connected to Redis")
	}
	cancel()

	registry := repositories.NewCachedRegistry(
		repositories.NewRegistryRepository(db), cacheService, cfg.RegistryCacheTTL)
	settlement := repositories.NewSettlementRepository(db,
		cache.NewRequestGuard(redisClient, cfg.IdempotencyTTL))

	sessions := session.NewSessions(session.Deps{
		Interpreter: qr.NewInterpreter(registry, qr.WithLookupTimeout(cfg.RegistryTimeout)),
		Settlement:  settlement,
		Wallets:     repositories.NewWalletRepository(db),
		Device:      camera.NewSerialDevice(cfg.CameraDeviceGlob),
	}, session.Config{
		Debounce:          cfg.ScanDebounce,
		SettlementTimeout: cfg.SettlementTimeout,
		PermissionTimeout: cfg.CameraPermissionTimeout,
		DefaultCurrency:   cfg.DefaultCurrency,
		IdleTTL:           cfg.SessionIdleTTL,
	})
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Warnf("failed to release cameras: %v", err)
		}
	}()
	evictCtx, stopEviction := context.WithCancel(context.Background())
	defer stopEviction()
	go sessions.Run(evictCtx, time.Minute)

	app := fiber.New(fiber.Config{AppName: "qrpay"})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Use("/api/scan/manual", limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	}))

	routes.SetupRoutes(app, routes.Deps{
		Sessions:  sessions,
		Health:    handlers.NewHealthHandler(db, cacheService),
		JWTSecret: cfg.JWTSecret,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Errorf("server stopped: %v", err)
	}
}
