package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"vpnshop/internal/handler/api"
	"vpnshop/internal/middleware"
	"vpnshop/internal/pkg/guard"
)

// Handlers bundles the HTTP handlers mounted by Setup.
type Handlers struct {
	Orders  *api.OrderHandler
	Plans   *api.PlanHandler
	Webhook http.Handler // nil in polling mode
	Metrics http.Handler
}

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	h Handlers,
	logger *zap.Logger,
	apiKey string,
	hashFilePath string,
	updates guard.Guard,
) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	// API group with auth + logging middleware
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.APIAuth(apiKey, hashFilePath))
	apiGroup.Use(middleware.APILogger(logger.Named("api")))

	apiGroup.POST("/orders", h.Orders.Handle)
	apiGroup.POST("/plans", h.Plans.Handle)
	apiGroup.GET("/plans", h.Plans.Handle)

	// Telegram webhook (protected by IP check + deduplication)
	if h.Webhook != nil {
		botWebhookGroup := e.Group("/bot")
		botWebhookGroup.Use(middleware.TelegramIPCheck())
		botWebhookGroup.Use(middleware.TelegramUpdateDedup(updates))
		botWebhookGroup.POST("/webhook", echo.WrapHandler(h.Webhook))
	} else {
		logger.Info("Telegram webhook routes disabled (bot update mode is polling)")
	}

	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
