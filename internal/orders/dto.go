package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// ListFilters narrows order lists.
type ListFilters struct {
	Status *enums.OrderStatus
}

// DirectOrderInput buys a listing at its asking price.
type DirectOrderInput struct {
	ListingID         uuid.UUID
	ShippingAddressID uuid.UUID
}

// ShipmentInput records the carrier hand-off.
type ShipmentInput struct {
	TrackingNumber string
	Carrier        string
}

// RefundInput resolves a refund. A nil Amount refunds the full payment.
type RefundInput struct {
	Amount *decimal.Decimal
	Reason string
}
