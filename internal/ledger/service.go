package ledger

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// Service records the money trail of an order: hold creation, release,
// cancellation and buyer refunds.
type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
	SummaryForOrder(ctx context.Context, orderID uuid.UUID) (*Summary, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
}

// RecordLedgerEventInput is one row to append.
type RecordLedgerEventInput struct {
	OrderID   uuid.UUID
	PaymentID *uuid.UUID
	HoldID    *uuid.UUID
	SellerID  uuid.UUID
	ActorID   *uuid.UUID
	Type      enums.LedgerEventType
	Amount    decimal.Decimal
	Partial   bool
	Metadata  json.RawMessage
}

// Summary folds an order's rows into the amounts an operator reconciles
// against the gateway.
type Summary struct {
	Held     decimal.Decimal `json:"held"`
	Released decimal.Decimal `json:"released"`
	Refunded decimal.Decimal `json:"refunded"`
	Events   int             `json:"events"`
}

// Outstanding is what is still owed to the seller.
func (s Summary) Outstanding() decimal.Decimal {
	return s.Held
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	switch {
	case input.OrderID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger order id is required")
	case input.SellerID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger seller id is required")
	case !input.Type.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger event type").
			WithDetails(map[string]any{"type": string(input.Type)})
	case input.Amount.IsNegative():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger amount cannot be negative")
	}

	event := &models.LedgerEvent{
		OrderID:   input.OrderID,
		PaymentID: input.PaymentID,
		HoldID:    input.HoldID,
		SellerID:  input.SellerID,
		ActorID:   input.ActorID,
		Type:      input.Type,
		Amount:    money.Round(input.Amount),
		Partial:   input.Partial,
		Metadata:  input.Metadata,
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append ledger event")
	}
	return event, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	events, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger events")
	}
	return events, nil
}

func (s *service) SummaryForOrder(ctx context.Context, orderID uuid.UUID) (*Summary, error) {
	events, err := s.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(events)
	return &summary, nil
}

// Summarize replays rows in order. A hold moves from Held to Released when
// paid out, or drops out of Held when cancelled for a refund.
func Summarize(events []models.LedgerEvent) Summary {
	sum := Summary{Held: decimal.Zero, Released: decimal.Zero, Refunded: decimal.Zero}
	for _, e := range events {
		sum.Events++
		switch e.Type {
		case enums.LedgerEventTypeHoldCreated:
			sum.Held = sum.Held.Add(e.Amount)
		case enums.LedgerEventTypeHoldReleased:
			sum.Held = sum.Held.Sub(e.Amount)
			sum.Released = sum.Released.Add(e.Amount)
		case enums.LedgerEventTypeHoldCancelled:
			sum.Held = sum.Held.Sub(e.Amount)
		case enums.LedgerEventTypeRefund:
			sum.Refunded = sum.Refunded.Add(e.Amount)
		}
	}
	return sum
}

func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !eventType.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger event type")
	}
	ok, err := s.repo.Exists(ctx, orderID, eventType)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check ledger event")
	}
	return ok, nil
}
