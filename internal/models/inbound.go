package models

import "time"

// Inbound caches the raw inbound JSON of the default x-ui panel, mapped to `inbounds`.
type Inbound struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PanelHost   string    `gorm:"column:panel_host;size:255;uniqueIndex:idx_inbound_panel" json:"panel_host"`
	InboundID   int       `gorm:"column:inbound_id;uniqueIndex:idx_inbound_panel" json:"inbound_id"`
	InboundData string    `gorm:"column:inbound_data;type:text" json:"inbound_data"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Inbound) TableName() string {
	return "inbounds"
}
