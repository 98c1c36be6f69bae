package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/types"
)

// Order is the purchase created from an accepted offer or a direct buy. The
// commission columns snapshot the rule that priced it.
type Order struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber          string            `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	ListingID            uuid.UUID         `gorm:"column:listing_id;type:uuid;not null;index"`
	BuyerID              uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID             uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	OfferID              *uuid.UUID        `gorm:"column:offer_id;type:uuid;uniqueIndex:ux_orders_offer_id"`
	Currency             enums.Currency    `gorm:"column:currency;type:text;not null"`
	TotalAmount          decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CommissionAmount     decimal.Decimal   `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	CommissionRuleID     *uuid.UUID        `gorm:"column:commission_rule_id;type:uuid"`
	CommissionRuleName   string            `gorm:"column:commission_rule_name;not null"`
	CommissionRate       decimal.Decimal   `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	CommissionMinApplied bool              `gorm:"column:commission_min_applied;not null"`
	CommissionMaxApplied bool              `gorm:"column:commission_max_applied;not null"`
	CommissionFallback   bool              `gorm:"column:commission_fallback;not null"`
	Status               enums.OrderStatus `gorm:"column:status;type:order_status;not null;index"`
	Version              int               `gorm:"column:version;not null"`
	ShippingAddress      *types.Address    `gorm:"column:shipping_address;type:jsonb"`
	TrackingNumber       *string           `gorm:"column:tracking_number"`
	Carrier              *string           `gorm:"column:carrier"`
	CancelReason         *string           `gorm:"column:cancel_reason"`
	PaidAt               *time.Time        `gorm:"column:paid_at"`
	ShippedAt            *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt          *time.Time        `gorm:"column:delivered_at"`
	CompletedAt          *time.Time        `gorm:"column:completed_at"`
	CancelledAt          *time.Time        `gorm:"column:cancelled_at"`
	RefundedAt           *time.Time        `gorm:"column:refunded_at"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// SellerAmount is the payout owed to the seller once escrow releases.
func (o *Order) SellerAmount() decimal.Decimal {
	return o.TotalAmount.Sub(o.CommissionAmount)
}
