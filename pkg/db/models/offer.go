package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Offer is a buyer-proposed price on a listing. Counter offers start a new
// round pointing back at the offer they replaced.
type Offer struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ListingID         uuid.UUID         `gorm:"column:listing_id;type:uuid;not null;uniqueIndex:ux_offers_pending_buyer_listing,where:status = 'pending'"`
	BuyerID           uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:ux_offers_pending_buyer_listing"`
	SellerID          uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	Amount            decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null"`
	Status            enums.OfferStatus `gorm:"column:status;type:offer_status;not null;index"`
	ExpiresAt         time.Time         `gorm:"column:expires_at;not null"`
	Version           int               `gorm:"column:version;not null"`
	Round             int               `gorm:"column:round;not null"`
	CounterOfID       *uuid.UUID        `gorm:"column:counter_of_id;type:uuid"`
	ShippingAddressID *uuid.UUID        `gorm:"column:shipping_address_id;type:uuid"`
	Message           *string           `gorm:"column:message"`
	RespondedAt       *time.Time        `gorm:"column:responded_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// IsExpiredAt reports whether a pending offer has passed its deadline.
func (o *Offer) IsExpiredAt(now time.Time) bool {
	return o.Status == enums.OfferStatusPending && !now.Before(o.ExpiresAt)
}
