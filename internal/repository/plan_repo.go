package repository

import (
	"context"

	"gorm.io/gorm"

	"vpnshop/internal/models"
)

// PlanRepository handles plan catalog queries.
type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// FindByID returns a plan by ID.
func (r *PlanRepository) FindByID(ctx context.Context, id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindActive returns active plans ordered by duration, then price.
func (r *PlanRepository) FindActive(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("duration_days ASC").Order("price ASC").Find(&plans).Error
	return plans, err
}

// Create inserts a plan.
func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}
