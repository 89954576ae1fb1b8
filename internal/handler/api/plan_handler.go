package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnshop/internal/models"
)

// PlanReader reads the plan catalog.
type PlanReader interface {
	FindActive(ctx context.Context) ([]models.Plan, error)
	FindByID(ctx context.Context, id uint) (*models.Plan, error)
}

// PlanHandler serves the plan catalog.
type PlanHandler struct {
	plans  PlanReader
	logger *zap.Logger
}

func NewPlanHandler(plans PlanReader, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{plans: plans, logger: logger}
}

// Handle routes plan API requests.
// POST /api/plans
func (h *PlanHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "list_plans":
		return h.listPlans(c)
	case "plan":
		return h.getPlan(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *PlanHandler) listPlans(c echo.Context) error {
	plans, err := h.plans.FindActive(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list plans", zap.Error(err))
		return errorResponse(c, "Failed to retrieve plans")
	}

	views := make([]models.PlanView, 0, len(plans))
	groups := map[string][]models.PlanView{}
	for _, p := range plans {
		v := models.NewPlanView(p)
		views = append(views, v)
		groups[v.DurationGroup] = append(groups[v.DurationGroup], v)
	}
	return successResponse(c, "Successful", map[string]interface{}{
		"plans":  views,
		"groups": groups,
	})
}

func (h *PlanHandler) getPlan(c echo.Context, body map[string]interface{}) error {
	id := getUintField(body, "id")
	if id == 0 {
		return errorResponse(c, "id is required")
	}
	plan, err := h.plans.FindByID(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, "Plan not found")
	}
	return successResponse(c, "Successful", models.NewPlanView(*plan))
}
