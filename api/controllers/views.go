package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/internal/commission"
	"github.com/angelmondragon/tradepost-backend/internal/ledger"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
	"github.com/angelmondragon/tradepost-backend/pkg/types"
)

type pageView[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func newPageView[M any, V any](page pagination.Page[M], convert func(*M) V) pageView[V] {
	items := make([]V, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, convert(&page.Items[i]))
	}
	return pageView[V]{Items: items, NextCursor: page.NextCursor}
}

type listingView struct {
	ID          uuid.UUID           `json:"id"`
	SellerID    uuid.UUID           `json:"seller_id"`
	Title       string              `json:"title"`
	Description *string             `json:"description,omitempty"`
	Price       decimal.Decimal     `json:"price"`
	Currency    enums.Currency      `json:"currency"`
	Status      enums.ListingStatus `json:"status"`
	SellerType  enums.SellerType    `json:"seller_type"`
	CategoryID  *uuid.UUID          `json:"category_id,omitempty"`
	PublishedAt *time.Time          `json:"published_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

func newListingView(l *models.Listing) listingView {
	return listingView{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price,
		Currency:    l.Currency,
		Status:      l.Status,
		SellerType:  l.SellerType,
		CategoryID:  l.CategoryID,
		PublishedAt: l.PublishedAt,
		CreatedAt:   l.CreatedAt,
	}
}

type offerView struct {
	ID                uuid.UUID         `json:"id"`
	ListingID         uuid.UUID         `json:"listing_id"`
	BuyerID           uuid.UUID         `json:"buyer_id"`
	SellerID          uuid.UUID         `json:"seller_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            enums.OfferStatus `json:"status"`
	Round             int               `json:"round"`
	CounterOfID       *uuid.UUID        `json:"counter_of_id,omitempty"`
	ShippingAddressID *uuid.UUID        `json:"shipping_address_id,omitempty"`
	Message           *string           `json:"message,omitempty"`
	ExpiresAt         time.Time         `json:"expires_at"`
	RespondedAt       *time.Time        `json:"responded_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

func newOfferView(o *models.Offer) offerView {
	return offerView{
		ID:                o.ID,
		ListingID:         o.ListingID,
		BuyerID:           o.BuyerID,
		SellerID:          o.SellerID,
		Amount:            o.Amount,
		Status:            o.Status,
		Round:             o.Round,
		CounterOfID:       o.CounterOfID,
		ShippingAddressID: o.ShippingAddressID,
		Message:           o.Message,
		ExpiresAt:         o.ExpiresAt,
		RespondedAt:       o.RespondedAt,
		CreatedAt:         o.CreatedAt,
	}
}

type commissionView struct {
	Amount     decimal.Decimal `json:"amount"`
	RuleID     *uuid.UUID      `json:"rule_id,omitempty"`
	RuleName   string          `json:"rule_name"`
	Rate       decimal.Decimal `json:"rate"`
	MinApplied bool            `json:"min_applied"`
	MaxApplied bool            `json:"max_applied"`
	Fallback   bool            `json:"fallback"`
}

type orderView struct {
	ID              uuid.UUID         `json:"id"`
	OrderNumber     string            `json:"order_number"`
	ListingID       uuid.UUID         `json:"listing_id"`
	BuyerID         uuid.UUID         `json:"buyer_id"`
	SellerID        uuid.UUID         `json:"seller_id"`
	OfferID         *uuid.UUID        `json:"offer_id,omitempty"`
	Currency        enums.Currency    `json:"currency"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	SellerAmount    decimal.Decimal   `json:"seller_amount"`
	Commission      commissionView    `json:"commission"`
	Status          enums.OrderStatus `json:"status"`
	Version         int               `json:"version"`
	ShippingAddress *types.Address    `json:"shipping_address,omitempty"`
	TrackingNumber  *string           `json:"tracking_number,omitempty"`
	Carrier         *string           `json:"carrier,omitempty"`
	CancelReason    *string           `json:"cancel_reason,omitempty"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	ShippedAt       *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time        `json:"delivered_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	RefundedAt      *time.Time        `json:"refunded_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func newOrderView(o *models.Order) orderView {
	return orderView{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		ListingID:    o.ListingID,
		BuyerID:      o.BuyerID,
		SellerID:     o.SellerID,
		OfferID:      o.OfferID,
		Currency:     o.Currency,
		TotalAmount:  o.TotalAmount,
		SellerAmount: o.TotalAmount.Sub(o.CommissionAmount),
		Commission: commissionView{
			Amount:     o.CommissionAmount,
			RuleID:     o.CommissionRuleID,
			RuleName:   o.CommissionRuleName,
			Rate:       o.CommissionRate,
			MinApplied: o.CommissionMinApplied,
			MaxApplied: o.CommissionMaxApplied,
			Fallback:   o.CommissionFallback,
		},
		Status:          o.Status,
		Version:         o.Version,
		ShippingAddress: o.ShippingAddress,
		TrackingNumber:  o.TrackingNumber,
		Carrier:         o.Carrier,
		CancelReason:    o.CancelReason,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CompletedAt:     o.CompletedAt,
		CancelledAt:     o.CancelledAt,
		RefundedAt:      o.RefundedAt,
		CreatedAt:       o.CreatedAt,
	}
}

type acceptView struct {
	Offer offerView `json:"offer"`
	Order orderView `json:"order"`
}

type paymentView struct {
	ID            uuid.UUID             `json:"id"`
	OrderID       uuid.UUID             `json:"order_id"`
	Amount        decimal.Decimal       `json:"amount"`
	Currency      enums.Currency        `json:"currency"`
	Provider      enums.PaymentProvider `json:"provider"`
	Reference     *string               `json:"provider_reference_id,omitempty"`
	Status        enums.PaymentStatus   `json:"status"`
	RedirectURL   *string               `json:"redirect_url,omitempty"`
	FailureReason *string               `json:"failure_reason,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	FailedAt      *time.Time            `json:"failed_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

func newPaymentView(p *models.Payment) paymentView {
	return paymentView{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Provider:      p.Provider,
		Reference:     p.ProviderReferenceID,
		Status:        p.Status,
		RedirectURL:   p.RedirectURL,
		FailureReason: p.FailureReason,
		CompletedAt:   p.CompletedAt,
		FailedAt:      p.FailedAt,
		CreatedAt:     p.CreatedAt,
	}
}

type holdView struct {
	ID          uuid.UUID        `json:"id"`
	OrderID     uuid.UUID        `json:"order_id"`
	PaymentID   uuid.UUID        `json:"payment_id"`
	SellerID    uuid.UUID        `json:"seller_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Status      enums.HoldStatus `json:"status"`
	ReleaseAt   time.Time        `json:"release_at"`
	ReleasedAt  *time.Time       `json:"released_at,omitempty"`
	CancelledAt *time.Time       `json:"cancelled_at,omitempty"`
}

func newHoldView(h *models.PaymentHold) holdView {
	return holdView{
		ID:          h.ID,
		OrderID:     h.OrderID,
		PaymentID:   h.PaymentID,
		SellerID:    h.SellerID,
		Amount:      h.Amount,
		Status:      h.Status,
		ReleaseAt:   h.ReleaseAt,
		ReleasedAt:  h.ReleasedAt,
		CancelledAt: h.CancelledAt,
	}
}

type orderLedgerView struct {
	Events  []ledgerView   `json:"events"`
	Summary ledger.Summary `json:"summary"`
}

type ledgerView struct {
	ID        uuid.UUID             `json:"id"`
	Type      enums.LedgerEventType `json:"type"`
	Amount    decimal.Decimal       `json:"amount"`
	Partial   bool                  `json:"partial"`
	PaymentID *uuid.UUID            `json:"payment_id,omitempty"`
	HoldID    *uuid.UUID            `json:"hold_id,omitempty"`
	ActorID   *uuid.UUID            `json:"actor_id,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

func newLedgerView(e *models.LedgerEvent) ledgerView {
	return ledgerView{
		ID:        e.ID,
		Type:      e.Type,
		Amount:    e.Amount,
		Partial:   e.Partial,
		PaymentID: e.PaymentID,
		HoldID:    e.HoldID,
		ActorID:   e.ActorID,
		CreatedAt: e.CreatedAt,
	}
}

type addressView struct {
	ID         uuid.UUID `json:"id"`
	Label      *string   `json:"label,omitempty"`
	Recipient  string    `json:"recipient"`
	Line1      string    `json:"line1"`
	Line2      *string   `json:"line2,omitempty"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	Phone      *string   `json:"phone,omitempty"`
}

func newAddressView(a *models.ShippingAddress) addressView {
	return addressView{
		ID:         a.ID,
		Label:      a.Label,
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type ruleView struct {
	ID            uuid.UUID                `json:"id"`
	Name          string                   `json:"name"`
	Percentage    decimal.Decimal          `json:"percentage"`
	RuleType      enums.CommissionRuleType `json:"rule_type"`
	CategoryID    *uuid.UUID               `json:"category_id,omitempty"`
	SellerType    *enums.SellerType        `json:"seller_type,omitempty"`
	MinCommission *decimal.Decimal         `json:"min_commission,omitempty"`
	MaxCommission *decimal.Decimal         `json:"max_commission,omitempty"`
	Priority      int                      `json:"priority"`
	IsActive      bool                     `json:"is_active"`
}

func newRuleView(r *models.CommissionRule) ruleView {
	return ruleView{
		ID:            r.ID,
		Name:          r.Name,
		Percentage:    r.Percentage,
		RuleType:      r.RuleType,
		CategoryID:    r.CategoryID,
		SellerType:    r.SellerType,
		MinCommission: r.MinCommission,
		MaxCommission: r.MaxCommission,
		Priority:      r.Priority,
		IsActive:      r.IsActive,
	}
}

func newCommissionView(r commission.Result) commissionView {
	return commissionView{
		Amount:     r.Amount,
		RuleID:     r.RuleID,
		RuleName:   r.RuleName,
		Rate:       r.Rate,
		MinApplied: r.MinApplied,
		MaxApplied: r.MaxApplied,
		Fallback:   r.Fallback,
	}
}

func mapSlice[M any, V any](rows []M, convert func(*M) V) []V {
	out := make([]V, 0, len(rows))
	for i := range rows {
		out = append(out, convert(&rows[i]))
	}
	return out
}
