package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnshop/internal/fulfillment"
	"vpnshop/internal/models"
)

// OrderService is the order side of the fulfillment service.
type OrderService interface {
	CreateOrder(ctx context.Context, userID, planID uint, serverID *uint, source, paymentMethod string) (*models.Order, error)
	RenewOrder(ctx context.Context, userID, originalID uint, source, paymentMethod string) (*models.Order, error)
	ChargeWallet(ctx context.Context, userID uint, amount int64, source, paymentMethod string) (*models.Order, error)
	Approve(ctx context.Context, orderID uint) (*fulfillment.Outcome, error)
	PayWithWallet(ctx context.Context, orderID, userID uint, source string) (*fulfillment.Outcome, error)
}

// OrderLister reads orders for the listing actions.
type OrderLister interface {
	FindByID(ctx context.Context, id uint) (*models.Order, error)
	FindByUser(ctx context.Context, userID uint, limit, page int) ([]models.Order, int64, error)
}

// OrderHandler handles all order API actions.
type OrderHandler struct {
	svc    OrderService
	orders OrderLister
	logger *zap.Logger
}

func NewOrderHandler(svc OrderService, orders OrderLister, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, orders: orders, logger: logger}
}

// Handle routes order API requests.
// POST /api/orders
func (h *OrderHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "create_order":
		return h.createOrder(c, body)
	case "renew_order":
		return h.renewOrder(c, body)
	case "charge_wallet":
		return h.chargeWallet(c, body)
	case "approve":
		return h.approve(c, body)
	case "pay_wallet":
		return h.payWallet(c, body)
	case "orders":
		return h.listOrders(c, body)
	case "order":
		return h.getOrder(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *OrderHandler) fail(c echo.Context, action string, err error) error {
	if msg, ok := errorMessage(err); ok {
		return errorResponse(c, msg)
	}
	h.logger.Error("order action failed", zap.String("action", action), zap.Error(err))
	return errorResponse(c, "Internal error")
}

func (h *OrderHandler) createOrder(c echo.Context, body map[string]interface{}) error {
	userID := getUintField(body, "user_id")
	planID := getUintField(body, "plan_id")
	if userID == 0 || planID == 0 {
		return errorResponse(c, "user_id and plan_id are required")
	}
	var serverID *uint
	if id := getUintField(body, "server_id"); id > 0 {
		serverID = &id
	}

	order, err := h.svc.CreateOrder(c.Request().Context(), userID, planID, serverID, sourceField(body), getStringField(body, "payment_method"))
	if err != nil {
		return h.fail(c, "create_order", err)
	}
	return successResponse(c, "Order created", order)
}

func (h *OrderHandler) renewOrder(c echo.Context, body map[string]interface{}) error {
	userID := getUintField(body, "user_id")
	orderID := getUintField(body, "order_id")
	if userID == 0 || orderID == 0 {
		return errorResponse(c, "user_id and order_id are required")
	}

	order, err := h.svc.RenewOrder(c.Request().Context(), userID, orderID, sourceField(body), getStringField(body, "payment_method"))
	if err != nil {
		return h.fail(c, "renew_order", err)
	}
	return successResponse(c, "Renewal order created", order)
}

func (h *OrderHandler) chargeWallet(c echo.Context, body map[string]interface{}) error {
	userID := getUintField(body, "user_id")
	amount := getIntField(body, "amount", 0)
	if userID == 0 || amount <= 0 {
		return errorResponse(c, "user_id and amount are required")
	}

	order, err := h.svc.ChargeWallet(c.Request().Context(), userID, int64(amount), sourceField(body), getStringField(body, "payment_method"))
	if err != nil {
		return h.fail(c, "charge_wallet", err)
	}
	return successResponse(c, "Top-up order created", order)
}

// approve is the admin action; failures carry the raw provisioning error.
func (h *OrderHandler) approve(c echo.Context, body map[string]interface{}) error {
	orderID := getUintField(body, "order_id")
	if orderID == 0 {
		return errorResponse(c, "order_id is required")
	}

	out, err := h.svc.Approve(c.Request().Context(), orderID)
	if err != nil {
		return h.fail(c, "approve", err)
	}
	if !out.Success {
		return c.JSON(http.StatusOK, models.APIResponse{Status: false, Msg: out.ErrorMessage, Obj: out})
	}
	return successResponse(c, "Order approved", out)
}

func (h *OrderHandler) payWallet(c echo.Context, body map[string]interface{}) error {
	userID := getUintField(body, "user_id")
	orderID := getUintField(body, "order_id")
	if userID == 0 || orderID == 0 {
		return errorResponse(c, "user_id and order_id are required")
	}

	out, err := h.svc.PayWithWallet(c.Request().Context(), orderID, userID, sourceField(body))
	if err != nil {
		return h.fail(c, "pay_wallet", err)
	}
	if !out.Success {
		return c.JSON(http.StatusOK, models.APIResponse{
			Status: false,
			Msg:    "Activation failed and the amount was returned to the wallet: " + out.ErrorMessage,
			Obj:    out,
		})
	}
	return successResponse(c, "Order paid", out)
}

func (h *OrderHandler) listOrders(c echo.Context, body map[string]interface{}) error {
	userID := getUintField(body, "user_id")
	if userID == 0 {
		return errorResponse(c, "user_id is required")
	}
	limit := getIntField(body, "limit", 50)
	page := getIntField(body, "page", 1)

	orders, total, err := h.orders.FindByUser(c.Request().Context(), userID, limit, page)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		return errorResponse(c, "Failed to retrieve orders")
	}
	return successResponse(c, "Successful", paginatedResponse(orders, total, page, limit))
}

func (h *OrderHandler) getOrder(c echo.Context, body map[string]interface{}) error {
	id := getUintField(body, "order_id")
	if id == 0 {
		return errorResponse(c, "order_id is required")
	}
	order, err := h.orders.FindByID(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, "Order not found")
	}
	return successResponse(c, "Successful", order)
}

func sourceField(body map[string]interface{}) string {
	if s := getStringField(body, "source"); s == models.OrderSourceTelegram {
		return s
	}
	return models.OrderSourceWeb
}
