package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// PaymentHold keeps the seller share of a completed payment in escrow.
type PaymentHold struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID   uuid.UUID        `gorm:"column:payment_id;type:uuid;not null;uniqueIndex:ux_payment_holds_payment_id"`
	OrderID     uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID    uuid.UUID        `gorm:"column:seller_id;type:uuid;not null"`
	Amount      decimal.Decimal  `gorm:"column:amount;type:numeric(12,2);not null"`
	Status      enums.HoldStatus `gorm:"column:status;type:payment_hold_status;not null;index"`
	ReleaseAt   time.Time        `gorm:"column:release_at;not null"`
	ReleasedAt  *time.Time       `gorm:"column:released_at"`
	CancelledAt *time.Time       `gorm:"column:cancelled_at"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (h *PaymentHold) BeforeCreate(tx *gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
