package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vpnshop/internal/bootstrap"
	"vpnshop/internal/bot"
	"vpnshop/internal/config"
	cronpkg "vpnshop/internal/cron"
	"vpnshop/internal/fulfillment"
	"vpnshop/internal/handler/api"
	"vpnshop/internal/metrics"
	"vpnshop/internal/notify"
	"vpnshop/internal/panel"
	"vpnshop/internal/pkg/guard"
	"vpnshop/internal/pkg/telegram"
	"vpnshop/internal/provisioning"
	"vpnshop/internal/repository"
	"vpnshop/internal/router"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}
	if hasArg("--bootstrap-db") {
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Guard (Redis with in-memory fallback) ---
	g, guardErr := guard.New(guard.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Pass,
		DB:       cfg.Redis.DB,
		SeenTTL:  10 * time.Minute,
		LockTTL:  cfg.Provisioning.OrderLockTTL,
	})
	if guardErr != nil {
		logger.Warn("Redis unavailable, using in-memory locks and dedup", zap.Error(guardErr))
	}

	// --- Repositories ---
	users := repository.NewUserRepository(db)
	orders := repository.NewOrderRepository(db)
	plans := repository.NewPlanRepository(db)
	servers := repository.NewServerRepository(db)

	// --- Provisioning ---
	provMetrics := metrics.NewProvisioning(prometheus.DefaultRegisterer)
	var serverFinder provisioning.ServerFinder
	if cfg.Provisioning.MultiServerEnabled {
		serverFinder = servers
	}
	orchestrator := provisioning.NewOrchestrator(
		provisioning.NewResolver(serverFinder, logger.Named("resolver")),
		panel.New,
		repository.NewInboundRepository(db),
		provMetrics,
		cfg.Provisioning.PanelTimeout,
		logger.Named("provisioning"),
	)

	// --- Telegram Bot API (direct HTTP client) ---
	botAPI := telegram.NewBotAPI(cfg.Bot.Token)
	dispatcher := notify.NewDispatcher(botAPI, users, cfg.Bot.AdminID, logger.Named("notify"))

	// --- Fulfillment ---
	svc := fulfillment.NewService(db, orchestrator, g, dispatcher, provMetrics, logger.Named("fulfillment"))

	// --- Bot ---
	teleBot, err := bot.New(cfg.Bot, bot.Deps{
		Orders:  svc,
		Users:   users,
		Plans:   plans,
		History: orders,
	}, logger.Named("bot"))
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, router.Handlers{
		Orders:  api.NewOrderHandler(svc, orders, logger),
		Plans:   api.NewPlanHandler(plans, logger),
		Webhook: teleBot.WebhookHandler(),
		Metrics: promhttp.Handler(),
	}, logger, cfg.API.Key, cfg.API.HashFile, g)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg.Jobs, cronpkg.Repos{
		Orders:        orders,
		Users:         users,
		Plans:         plans,
		Notifications: repository.NewNotificationRepository(db),
		Settings:      repository.NewSettingRepository(db),
	}, dispatcher, orchestrator, logger.Named("cron"))
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting vpnshop server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// Webhook mode receives updates through the Echo-mounted handler.
	go teleBot.Start()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	teleBot.Stop()

	ctx := scheduler.Stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}
