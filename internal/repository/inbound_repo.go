package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vpnshop/internal/models"
)

// InboundRepository caches raw x-ui inbound objects.
type InboundRepository struct {
	db *gorm.DB
}

func NewInboundRepository(db *gorm.DB) *InboundRepository {
	return &InboundRepository{db: db}
}

// Load returns the cached inbound, or nil on a miss.
func (r *InboundRepository) Load(ctx context.Context, host string, inboundID int) ([]byte, error) {
	var rows []models.Inbound
	err := r.db.WithContext(ctx).
		Where("panel_host = ? AND inbound_id = ?", host, inboundID).
		Limit(1).Find(&rows).Error
	if err != nil || len(rows) == 0 || rows[0].InboundData == "" {
		return nil, err
	}
	return []byte(rows[0].InboundData), nil
}

// Store upserts the cached inbound.
func (r *InboundRepository) Store(ctx context.Context, host string, inboundID int, data []byte) error {
	row := models.Inbound{PanelHost: host, InboundID: inboundID, InboundData: string(data), UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "panel_host"}, {Name: "inbound_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"inbound_data", "updated_at"}),
	}).Create(&row).Error
}
