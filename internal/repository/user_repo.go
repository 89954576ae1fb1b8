package repository

import (
	"context"

	"gorm.io/gorm"

	"vpnshop/internal/models"
)

// UserRepository handles all user database operations.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// FindByID finds a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByTelegramChatID finds the user linked to a Telegram chat.
func (r *UserRepository) FindByTelegramChatID(ctx context.Context, chatID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Credit adds amount to the user's balance.
func (r *UserRepository) Credit(ctx context.Context, id uint, amount int64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// Debit subtracts amount only if the balance covers it. It reports whether
// the balance was debited.
func (r *UserRepository) Debit(ctx context.Context, id uint, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetShowRenewalNotification toggles the renewal banner on the dashboard.
func (r *UserRepository) SetShowRenewalNotification(ctx context.Context, id uint, show bool) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Update("show_renewal_notification", show).Error
}
