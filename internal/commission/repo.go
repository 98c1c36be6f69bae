package commission

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
)

// Repository reads and writes commission rules.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListActive(ctx context.Context) ([]models.CommissionRule, error)
	ListAll(ctx context.Context) ([]models.CommissionRule, error)
	Create(ctx context.Context, rule *models.CommissionRule) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission rule repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListActive(ctx context.Context) ([]models.CommissionRule, error) {
	var rules []models.CommissionRule
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority DESC").
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *repository) ListAll(ctx context.Context) ([]models.CommissionRule, error) {
	var rules []models.CommissionRule
	err := r.db.WithContext(ctx).
		Order("is_active DESC").
		Order("priority DESC").
		Order("created_at ASC").
		Find(&rules).Error
	return rules, err
}

func (r *repository) Create(ctx context.Context, rule *models.CommissionRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}
