package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"vpnshop/internal/fulfillment"
	"vpnshop/internal/models"
	"vpnshop/internal/pkg/utils"
)

// Response helpers for the {status,msg,obj} envelope.
func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}

func paginatedResponse(data interface{}, total int64, page, limit int) models.PaginatedResponse {
	return models.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		limit = 50
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// parseBodyAction extracts the "actions" field from request body.
// Every API request names its operation in "actions".
func parseBodyAction(c echo.Context) (string, map[string]interface{}, error) {
	body := make(map[string]interface{})
	if err := c.Bind(&body); err != nil {
		return "", nil, err
	}
	action, _ := body["actions"].(string)
	c.Set("api_actions", action) // for logging middleware
	return action, body, nil
}

// getStringField gets a string field from the body map.
func getStringField(body map[string]interface{}, key string) string {
	if v, ok := body[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		// Handle numbers that should be strings
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.0f", f)
		}
	}
	return ""
}

// getIntField gets an int field from the body map.
func getIntField(body map[string]interface{}, key string, defaultVal int) int {
	if v, ok := body[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case string:
			return int(utils.ParseInt64(t, int64(defaultVal)))
		}
	}
	return defaultVal
}

func getUintField(body map[string]interface{}, key string) uint {
	if n := getIntField(body, key, 0); n > 0 {
		return uint(n)
	}
	return 0
}

// errorMessage maps fulfillment rejections to client messages.
func errorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, fulfillment.ErrNotFound):
		return "Order not found", true
	case errors.Is(err, fulfillment.ErrNotPending):
		return "Order is not pending", true
	case errors.Is(err, fulfillment.ErrInProgress):
		return "Order is already being processed", true
	case errors.Is(err, fulfillment.ErrNoPlan):
		return "Order has no plan", true
	case errors.Is(err, fulfillment.ErrNotTopUp):
		return "Order is not a wallet top-up", true
	case errors.Is(err, fulfillment.ErrInsufficientBalance):
		return "Insufficient wallet balance", true
	case errors.Is(err, fulfillment.ErrForbidden):
		return "Order belongs to another user", true
	case errors.Is(err, fulfillment.ErrPlanUnavailable):
		return "Plan is not available", true
	case errors.Is(err, fulfillment.ErrServerUnavailable):
		return "Server is not available", true
	case errors.Is(err, fulfillment.ErrAmountTooLow):
		return fmt.Sprintf("Minimum charge is %d", fulfillment.MinWalletCharge), true
	}
	return "", false
}
