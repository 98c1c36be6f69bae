package addresses

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, addr *models.ShippingAddress) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ShippingAddress, error)
	FindOwned(ctx context.Context, userID, id uuid.UUID) (*models.ShippingAddress, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, addr *models.ShippingAddress) error {
	return r.db.WithContext(ctx).Create(addr).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ShippingAddress, error) {
	var rows []models.ShippingAddress
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindOwned(ctx context.Context, userID, id uuid.UUID) (*models.ShippingAddress, error) {
	var addr models.ShippingAddress
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&addr).Error
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
