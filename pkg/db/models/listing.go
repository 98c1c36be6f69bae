package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Listing is an item a seller offers for sale.
type Listing struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Title       string              `gorm:"column:title;not null"`
	Description *string             `gorm:"column:description"`
	Price       decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Currency    enums.Currency      `gorm:"column:currency;type:text;not null"`
	Status      enums.ListingStatus `gorm:"column:status;type:listing_status;not null;index"`
	SellerType  enums.SellerType    `gorm:"column:seller_type;type:seller_type;not null"`
	CategoryID  *uuid.UUID          `gorm:"column:category_id;type:uuid"`
	Version     int                 `gorm:"column:version;not null"`
	PublishedAt *time.Time          `gorm:"column:published_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
