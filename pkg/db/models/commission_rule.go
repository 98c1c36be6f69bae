package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// CommissionRule is a prioritized platform fee policy.
type CommissionRule struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Name          string                   `gorm:"column:name;not null"`
	Percentage    decimal.Decimal          `gorm:"column:percentage;type:numeric(5,2);not null"`
	RuleType      enums.CommissionRuleType `gorm:"column:rule_type;type:commission_rule_type;not null"`
	CategoryID    *uuid.UUID               `gorm:"column:category_id;type:uuid"`
	SellerType    *enums.SellerType        `gorm:"column:seller_type;type:seller_type"`
	MinCommission *decimal.Decimal         `gorm:"column:min_commission;type:numeric(12,2)"`
	MaxCommission *decimal.Decimal         `gorm:"column:max_commission;type:numeric(12,2)"`
	Priority      int                      `gorm:"column:priority;not null"`
	IsActive      bool                     `gorm:"column:is_active;not null;index"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *CommissionRule) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
