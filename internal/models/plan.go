package models

import (
	"fmt"
	"math"
	"time"

	"vpnshop/internal/pkg/utils"
)

// Plan maps to the `plans` table.
type Plan struct {
	ID              uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"column:name;size:255" json:"name"`
	Price           int64     `gorm:"column:price;not null;default:0" json:"price"`
	Features        string    `gorm:"column:features;type:text" json:"features"`
	IsPopular       bool      `gorm:"column:is_popular;not null;default:false" json:"is_popular"`
	IsActive        bool      `gorm:"column:is_active;not null" json:"is_active"`
	VolumeGB        int       `gorm:"column:volume_gb;not null;default:0" json:"volume_gb"`
	DurationDays    int       `gorm:"column:duration_days;not null;default:30" json:"duration_days"`
	PasargadGroupID *int      `gorm:"column:pasargad_group_id" json:"pasargad_group_id"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}

// QuotaBytes returns the traffic quota in bytes.
func (p *Plan) QuotaBytes() int64 {
	return utils.GBToBytes(p.VolumeGB)
}

// DurationLabel returns the human label shown next to the plan price.
func (p *Plan) DurationLabel() string {
	switch p.DurationDays {
	case 30:
		return "۱ ماهه"
	case 60:
		return "۲ ماهه"
	case 90:
		return "۳ ماهه"
	case 180:
		return "۶ ماهه"
	case 365:
		return "۱ ساله"
	case 730:
		return "۲ ساله"
	default:
		return fmt.Sprintf("%d روزه", p.DurationDays)
	}
}

// DurationGroup buckets plans for catalog grouping.
func (p *Plan) DurationGroup() string {
	switch {
	case p.DurationDays <= 90:
		return "ماهانه"
	case p.DurationDays <= 365:
		return "سه‌ماهه تا سالانه"
	default:
		return "سالانه+"
	}
}

// MonthlyPrice returns the 30-day equivalent price.
func (p *Plan) MonthlyPrice() int64 {
	if p.DurationDays == 0 {
		return p.Price
	}
	return int64(math.Round(float64(p.Price) / (float64(p.DurationDays) / 30)))
}
