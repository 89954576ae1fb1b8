package models

import "time"

// Order statuses.
const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusExpired = "expired"
)

// Order sources.
const (
	OrderSourceWeb      = "web"
	OrderSourceTelegram = "telegram"
)

// Payment methods.
const (
	PaymentMethodCard   = "card"
	PaymentMethodWallet = "wallet"
	PaymentMethodCrypto = "crypto"
	PaymentMethodAdmin  = "admin"
)

// Order maps to the `orders` table. A nil PlanID marks a wallet top-up.
type Order struct {
	ID             uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID         uint       `gorm:"column:user_id;not null;index" json:"user_id"`
	PlanID         *uint      `gorm:"column:plan_id;index" json:"plan_id"`
	ServerID       *uint      `gorm:"column:server_id;index" json:"server_id"`
	RenewsOrderID  *uint      `gorm:"column:renews_order_id;index" json:"renews_order_id"`
	Amount         int64      `gorm:"column:amount;not null;default:0" json:"amount"`
	DiscountAmount int64      `gorm:"column:discount_amount;not null;default:0" json:"discount_amount"`
	DiscountCodeID *uint      `gorm:"column:discount_code_id" json:"discount_code_id"`
	PaymentMethod  string     `gorm:"column:payment_method;size:32" json:"payment_method"`
	Source         string     `gorm:"column:source;size:32;default:web" json:"source"`
	Status         string     `gorm:"column:status;size:32;not null;default:pending;index" json:"status"`
	PanelUsername  string     `gorm:"column:panel_username;size:255" json:"panel_username"`
	PanelClientID  string     `gorm:"column:panel_client_id;size:255" json:"panel_client_id"`
	PanelSubID     string     `gorm:"column:panel_sub_id;size:255" json:"panel_sub_id"`
	ConfigDetails  string     `gorm:"column:config_details;type:text" json:"config_details"`
	ExpiresAt      *time.Time `gorm:"column:expires_at" json:"expires_at"`
	ReminderSentAt *time.Time `gorm:"column:reminder_sent_at" json:"reminder_sent_at"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// IsWalletTopUp reports whether the order charges the wallet instead of buying a plan.
func (o *Order) IsWalletTopUp() bool {
	return o.PlanID == nil
}

// IsRenewal reports whether the order renews an earlier paid order.
func (o *Order) IsRenewal() bool {
	return o.RenewsOrderID != nil && *o.RenewsOrderID > 0
}
