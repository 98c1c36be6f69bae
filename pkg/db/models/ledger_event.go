package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// LedgerEvent records an immutable money lifecycle event tied to an order.
type LedgerEvent struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	PaymentID *uuid.UUID            `gorm:"column:payment_id;type:uuid"`
	HoldID    *uuid.UUID            `gorm:"column:hold_id;type:uuid"`
	SellerID  uuid.UUID             `gorm:"column:seller_id;type:uuid;not null"`
	ActorID   *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Type      enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	Amount    decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Partial   bool                  `gorm:"column:partial;not null"`
	Metadata  json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
