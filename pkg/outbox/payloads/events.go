package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/pkg/types"
)

type OfferCreatedEvent struct {
	OfferID   uuid.UUID       `json:"offerId"`
	ListingID uuid.UUID       `json:"listingId"`
	BuyerID   uuid.UUID       `json:"buyerId"`
	SellerID  uuid.UUID       `json:"sellerId"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Round     int             `json:"round"`
}

type OfferAcceptedEvent struct {
	OfferID uuid.UUID       `json:"offerId"`
	OrderID uuid.UUID       `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	BuyerID     uuid.UUID       `json:"buyerId"`
	SellerID    uuid.UUID       `json:"sellerId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OfferID     *uuid.UUID      `json:"offerId,omitempty"`
}

type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"orderId"`
	OrderNumber      string          `json:"orderNumber"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	TransactionID    string          `json:"transactionId"`
	ShippingAddress  *types.Address  `json:"shippingAddress,omitempty"`
}

type OrderCancelledEvent struct {
	OrderID     uuid.UUID  `json:"orderId"`
	OrderNumber string     `json:"orderNumber"`
	ListingID   uuid.UUID  `json:"listingId"`
	BuyerID     uuid.UUID  `json:"buyerId"`
	SellerID    uuid.UUID  `json:"sellerId"`
	OfferID     *uuid.UUID `json:"offerId,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

type OrderRefundedEvent struct {
	OrderID      uuid.UUID       `json:"orderId"`
	OrderNumber  string          `json:"orderNumber"`
	PaymentID    uuid.UUID       `json:"paymentId"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	Partial      bool            `json:"partial"`
}

type EscrowReleasedEvent struct {
	HoldID     uuid.UUID       `json:"holdId"`
	OrderID    uuid.UUID       `json:"orderId"`
	SellerID   uuid.UUID       `json:"sellerId"`
	Amount     decimal.Decimal `json:"amount"`
	ReleasedAt time.Time       `json:"releasedAt"`
}
