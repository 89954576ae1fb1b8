package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"vpnshop/internal/models"
	"vpnshop/internal/settings"
)

// defaultSettings are seeded once; existing values are never overwritten.
var defaultSettings = map[string]string{
	settings.KeyPanelType:              "marzban",
	settings.KeyEnableMultiLocation:    "0",
	settings.KeyXUIDefaultInboundID:    "1",
	settings.KeyXUILinkType:            "single",
	settings.KeyXUISubscriptionURLBase: "",
	settings.KeyPasargadPaidGroupID:    "1",
	settings.KeyMarzbanProtocols:       "vless",
	settings.KeyRenewalBasePolicy:      "extend_stored",
}

// MigrateAndSeed ensures required tables exist and inserts missing default settings.
func MigrateAndSeed(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if err := seedDefaults(db); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func seedDefaults(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for key, value := range defaultSettings {
			var count int64
			if err := tx.Model(&models.Setting{}).Where(map[string]interface{}{"key": key}).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			row := models.Setting{Key: key, Value: value}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
