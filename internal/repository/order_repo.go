package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"vpnshop/internal/models"
)

// OrderRepository handles order persistence.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

// FulfillmentFields are written onto the order that carries the service.
type FulfillmentFields struct {
	ConfigDetails string
	ExpiresAt     time.Time
	PanelUsername string
	PanelClientID string
	PanelSubID    string
}

// FindByID returns an order by ID.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByUser returns a user's orders, newest first.
func (r *OrderRepository) FindByUser(ctx context.Context, userID uint, limit, page int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	if err := db.Limit(limit).Offset(offset).Order("id DESC").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// MarkPaidIfPending flips a pending order to paid. It reports false when the
// order was not pending, so at most one caller ever wins.
func (r *OrderRepository) MarkPaidIfPending(ctx context.Context, id uint, paymentMethod string) (bool, error) {
	updates := map[string]interface{}{"status": models.OrderStatusPaid}
	if paymentMethod != "" {
		updates["payment_method"] = paymentMethod
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ApplyFulfillment writes the provisioning result onto order id.
func (r *OrderRepository) ApplyFulfillment(ctx context.Context, id uint, f FulfillmentFields) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(map[string]interface{}{
		"config_details":   f.ConfigDetails,
		"expires_at":       f.ExpiresAt,
		"panel_username":   f.PanelUsername,
		"panel_client_id":  f.PanelClientID,
		"panel_sub_id":     f.PanelSubID,
		"reminder_sent_at": nil,
	}).Error
}

// SetServer pins order id to serverID.
func (r *OrderRepository) SetServer(ctx context.Context, id, serverID uint) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).
		Update("server_id", serverID).Error
}

// SetServerIfEmpty pins order id to serverID unless it already has a server.
func (r *OrderRepository) SetServerIfEmpty(ctx context.Context, id, serverID uint) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND (server_id IS NULL OR server_id = 0)", id).
		Update("server_id", serverID).Error
}

// FindExpiringUnreminded returns paid orders with a service expiring
// between now and before that have not been reminded yet.
func (r *OrderRepository) FindExpiringUnreminded(ctx context.Context, now, before time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ? AND reminder_sent_at IS NULL",
			models.OrderStatusPaid, now, before).
		Order("expires_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// MarkReminded stamps reminder_sent_at.
func (r *OrderRepository) MarkReminded(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).
		Update("reminder_sent_at", at).Error
}

// ExpireStalePending marks pending orders created before cutoff as expired.
func (r *OrderRepository) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Update("status", models.OrderStatusExpired)
	return res.RowsAffected, res.Error
}
