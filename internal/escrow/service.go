package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/inventory"
	"github.com/angelmondragon/tradepost-backend/internal/ledger"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// Service owns seller payout holds. Every mutating call runs inside the
// caller's transaction so hold rows commit together with the order and
// payment rows they belong to.
type Service interface {
	CreateHold(ctx context.Context, tx *gorm.DB, payment *models.Payment, order *models.Order) (*models.PaymentHold, error)
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor) (*models.PaymentHold, error)
	Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, refund RefundInput, actor auth.Actor) (*models.PaymentHold, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.PaymentHold, error)
	ListDue(ctx context.Context, before time.Time, limit int) ([]models.PaymentHold, error)
}

// RefundInput describes the buyer refund paired with a cancelled hold. A nil
// Amount refunds the full payment.
type RefundInput struct {
	Amount *decimal.Decimal
	Reason string
}

type locker interface {
	LockHoldByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.PaymentHold, error)
	LockPayment(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode inventory.Mode) (*models.Payment, error)
}

type service struct {
	repo    Repository
	ledger  ledger.Service
	locker  locker
	holdFor time.Duration
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(repo Repository, ledgerSvc ledger.Service, lock locker, holdFor time.Duration, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if lock == nil {
		return nil, fmt.Errorf("locker required")
	}
	if holdFor < 0 {
		return nil, fmt.Errorf("hold duration cannot be negative")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		ledger:  ledgerSvc,
		locker:  lock,
		holdFor: holdFor,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateHold(ctx context.Context, tx *gorm.DB, payment *models.Payment, order *models.Order) (*models.PaymentHold, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow hold requires a transaction")
	}
	if payment == nil || order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment and order required")
	}
	if payment.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "holds are created for completed payments only")
	}
	amount := money.Round(order.SellerAmount())
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "seller amount cannot be negative")
	}

	now := s.now()
	hold := &models.PaymentHold{
		PaymentID: payment.ID,
		OrderID:   order.ID,
		SellerID:  order.SellerID,
		Amount:    amount,
		Status:    enums.HoldStatusHeld,
		ReleaseAt: now.Add(s.holdFor),
	}
	if err := s.repo.WithTx(tx).Create(ctx, hold); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment hold")
	}

	paymentID := payment.ID
	if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
		OrderID:   order.ID,
		PaymentID: &paymentID,
		HoldID:    &hold.ID,
		SellerID:  order.SellerID,
		Type:      enums.LedgerEventTypeHoldCreated,
		Amount:    amount,
		Metadata:  metadata(map[string]any{"release_at": hold.ReleaseAt.Format(time.RFC3339)}),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record hold ledger event")
	}
	return hold, nil
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor) (*models.PaymentHold, error) {
	hold, err := s.lockHeld(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.repo.WithTx(tx).Transition(ctx, hold.ID, enums.HoldStatusReleased, now); err != nil {
		return nil, err
	}
	hold.Status = enums.HoldStatusReleased
	hold.ReleasedAt = &now

	paymentID := hold.PaymentID
	if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
		OrderID:   hold.OrderID,
		PaymentID: &paymentID,
		HoldID:    &hold.ID,
		SellerID:  hold.SellerID,
		ActorID:   actor.ActorIDPtr(),
		Type:      enums.LedgerEventTypeHoldReleased,
		Amount:    hold.Amount,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record release ledger event")
	}
	return hold, nil
}

func (s *service) Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, refund RefundInput, actor auth.Actor) (*models.PaymentHold, error) {
	hold, err := s.lockHeld(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	payment, err := s.locker.LockPayment(ctx, tx, hold.PaymentID, inventory.ModeBlocking)
	if err != nil {
		return nil, err
	}

	refundAmount := payment.Amount
	if refund.Amount != nil {
		refundAmount = money.Round(*refund.Amount)
	}
	if !refundAmount.IsPositive() || refundAmount.GreaterThan(payment.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive and at most the amount paid")
	}
	partial := refundAmount.LessThan(payment.Amount)

	now := s.now()
	repo := s.repo.WithTx(tx)
	if err := repo.Transition(ctx, hold.ID, enums.HoldStatusCancelled, now); err != nil {
		return nil, err
	}
	if err := repo.MarkPaymentRefunded(ctx, payment.ID, now); err != nil {
		return nil, err
	}
	hold.Status = enums.HoldStatusCancelled
	hold.CancelledAt = &now

	paymentID := payment.ID
	rows := []ledger.RecordLedgerEventInput{
		{
			OrderID:   hold.OrderID,
			PaymentID: &paymentID,
			HoldID:    &hold.ID,
			SellerID:  hold.SellerID,
			ActorID:   actor.ActorIDPtr(),
			Type:      enums.LedgerEventTypeHoldCancelled,
			Amount:    hold.Amount,
		},
		{
			OrderID:   hold.OrderID,
			PaymentID: &paymentID,
			HoldID:    &hold.ID,
			SellerID:  hold.SellerID,
			ActorID:   actor.ActorIDPtr(),
			Type:      enums.LedgerEventTypeRefund,
			Amount:    refundAmount,
			Partial:   partial,
			Metadata:  metadata(map[string]any{"reason": refund.Reason}),
		},
	}
	for _, row := range rows {
		if _, err := s.ledger.RecordEvent(ctx, tx, row); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund ledger event")
		}
	}
	return hold, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.PaymentHold, error) {
	hold, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment hold not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment hold")
	}
	return hold, nil
}

func (s *service) ListDue(ctx context.Context, before time.Time, limit int) ([]models.PaymentHold, error) {
	holds, err := s.repo.ListDue(ctx, before.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list due holds")
	}
	return holds, nil
}

func (s *service) lockHeld(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.PaymentHold, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow transition requires a transaction")
	}
	hold, err := s.locker.LockHoldByOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if hold.Status != enums.HoldStatusHeld {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment hold is already "+string(hold.Status))
	}
	return hold, nil
}

func metadata(fields map[string]any) json.RawMessage {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return raw
}
