package models

import "time"

// User maps to the `users` table.
type User struct {
	ID                      uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name                    string    `gorm:"column:name;size:255" json:"name"`
	Email                   string    `gorm:"column:email;size:255;index" json:"email"`
	TelegramChatID          string    `gorm:"column:telegram_chat_id;size:64;index" json:"telegram_chat_id"`
	Balance                 int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	ShowRenewalNotification bool      `gorm:"column:show_renewal_notification;not null;default:false" json:"show_renewal_notification"`
	CreatedAt               time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt               time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
