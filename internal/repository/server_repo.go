package repository

import (
	"context"

	"gorm.io/gorm"

	"vpnshop/internal/models"
)

// ServerRepository handles multi-location servers.
type ServerRepository struct {
	db *gorm.DB
}

func NewServerRepository(db *gorm.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ServerRepository) WithTx(tx *gorm.DB) *ServerRepository {
	return &ServerRepository{db: tx}
}

// FindByID returns a server with its location.
func (r *ServerRepository) FindByID(ctx context.Context, id uint) (*models.Server, error) {
	var server models.Server
	if err := r.db.WithContext(ctx).Preload("Location").First(&server, id).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

// FindActive returns active servers with locations.
func (r *ServerRepository) FindActive(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	err := r.db.WithContext(ctx).Preload("Location").Where("is_active = ?", true).Order("id ASC").Find(&servers).Error
	return servers, err
}

// Create inserts a server.
func (r *ServerRepository) Create(ctx context.Context, server *models.Server) error {
	return r.db.WithContext(ctx).Create(server).Error
}

// IncrementUsers bumps current_users after an account is placed on the server.
func (r *ServerRepository) IncrementUsers(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Server{}).Where("id = ?", id).
		Update("current_users", gorm.Expr("current_users + 1")).Error
}
