package models

import "time"

const (
	TransactionTypeDeposit  = "deposit"
	TransactionTypePurchase = "purchase"

	TransactionStatusCompleted = "completed"
)

// Transaction is an append-only ledger row, mapped to `transactions`.
type Transaction struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID      uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	OrderID     *uint     `gorm:"column:order_id;index" json:"order_id"`
	Amount      int64     `gorm:"column:amount;not null" json:"amount"`
	Type        string    `gorm:"column:type;size:32;not null" json:"type"`
	Status      string    `gorm:"column:status;size:32;not null" json:"status"`
	Description string    `gorm:"column:description;size:1000" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
