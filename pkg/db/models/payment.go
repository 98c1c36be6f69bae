package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Payment is one attempt to collect an order total through a provider.
type Payment struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payments_pending_order,where:status = 'pending'"`
	BuyerID             uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null"`
	Amount              decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency            enums.Currency        `gorm:"column:currency;type:text;not null"`
	Provider            enums.PaymentProvider `gorm:"column:provider;type:payment_provider;not null;uniqueIndex:ux_payments_provider_reference"`
	ProviderReferenceID *string               `gorm:"column:provider_reference_id;uniqueIndex:ux_payments_provider_reference"`
	Status              enums.PaymentStatus   `gorm:"column:status;type:payment_status;not null"`
	RedirectURL         *string               `gorm:"column:redirect_url"`
	FailureReason       *string               `gorm:"column:failure_reason"`
	CompletedAt         *time.Time            `gorm:"column:completed_at"`
	FailedAt            *time.Time            `gorm:"column:failed_at"`
	RefundedAt          *time.Time            `gorm:"column:refunded_at"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
