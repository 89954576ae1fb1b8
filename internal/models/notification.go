package models

import "time"

// Notification types written by order and wallet flows.
const (
	NotificationActivate            = "activate"
	NotificationRenew               = "renew"
	NotificationWalletCharged       = "wallet_charged"
	NotificationWalletDeducted      = "wallet_deducted"
	NotificationPaymentFailed       = "payment_failed"
	NotificationNewOrderCreated     = "new_order_created"
	NotificationRenewalOrderCreated = "renewal_order_created"
	NotificationWalletChargePending = "wallet_charge_pending"
	NotificationExpiryReminder      = "expiry_reminder"
)

// Notification is an in-app message shown on the dashboard, mapped to `notifications`.
type Notification struct {
	ID        uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    uint       `gorm:"column:user_id;not null;index" json:"user_id"`
	Type      string     `gorm:"column:type;size:64;not null" json:"type"`
	Title     string     `gorm:"column:title;size:255" json:"title"`
	Message   string     `gorm:"column:message;type:text" json:"message"`
	Link      string     `gorm:"column:link;size:500" json:"link"`
	ReadAt    *time.Time `gorm:"column:read_at" json:"read_at"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
