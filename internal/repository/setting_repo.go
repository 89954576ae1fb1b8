package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vpnshop/internal/models"
	"vpnshop/internal/settings"
)

// SettingRepository reads and writes the key/value settings table.
type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Snapshot reads every setting into an immutable snapshot.
func (r *SettingRepository) Snapshot(ctx context.Context) (settings.Snapshot, error) {
	var rows []models.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return settings.Snapshot{}, err
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return settings.New(values), nil
}

// Get returns one setting value, or "" when missing.
func (r *SettingRepository) Get(ctx context.Context, key string) (string, error) {
	var row models.Setting
	err := r.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).Limit(1).Find(&row).Error
	return row.Value, err
}

// Set upserts a setting.
func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}
