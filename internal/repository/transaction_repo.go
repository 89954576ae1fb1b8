package repository

import (
	"context"

	"gorm.io/gorm"

	"vpnshop/internal/models"
)

// TransactionRepository appends and reads ledger rows.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create appends a ledger row.
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// FindByOrder returns ledger rows of an order.
func (r *TransactionRepository) FindByOrder(ctx context.Context, orderID uint) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error
	return rows, err
}
