package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/inventory"
	"github.com/angelmondragon/tradepost-backend/internal/notifier"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

// Service collects order totals through external gateways and confirms them
// from gateway callbacks.
type Service interface {
	Initiate(ctx context.Context, buyer auth.Actor, input InitiateInput) (*models.Payment, error)
	// Authenticate verifies and parses a raw callback without side effects.
	Authenticate(ctx context.Context, provider string, payload []byte, signature string) (*Callback, error)
	Apply(ctx context.Context, cb *Callback) (*CallbackResult, error)
	HandleCallback(ctx context.Context, provider string, payload []byte, signature string) (*CallbackResult, error)
	Get(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (*models.Payment, error)
	ListForOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]models.Payment, error)
}

// InitiateInput starts or resumes a payment for an order.
type InitiateInput struct {
	OrderID  uuid.UUID
	Provider string
	// SourceID is the tokenized card for gateways that charge directly.
	SourceID string
}

// CallbackOutcome classifies what a callback did.
type CallbackOutcome string

const (
	OutcomeCompleted CallbackOutcome = "completed"
	OutcomeFailed    CallbackOutcome = "failed"
	OutcomeDuplicate CallbackOutcome = "duplicate"
	OutcomeIgnored   CallbackOutcome = "ignored"
)

// CallbackResult is returned to the webhook layer.
type CallbackResult struct {
	Outcome CallbackOutcome
	Payment *models.Payment
	Order   *models.Order
	Hold    *models.PaymentHold
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rowLocker interface {
	LockOrder(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode inventory.Mode) (*models.Order, error)
	LockPayment(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode inventory.Mode) (*models.Payment, error)
}

type orderPayer interface {
	MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order) error
}

type holdCreator interface {
	CreateHold(ctx context.Context, tx *gorm.DB, payment *models.Payment, order *models.Order) (*models.PaymentHold, error)
}

type transitionRecorder interface {
	IncTransition(entity, status string)
}

// ServiceParams wires the payment engine.
type ServiceParams struct {
	Tx        txRunner
	Repo      Repository
	Providers *Registry
	Locker    rowLocker
	Orders    orderPayer
	Escrow    holdCreator
	Notifier  notifier.Notifier
	Metrics   transitionRecorder
	Logger    *logger.Logger
}

type service struct {
	tx        txRunner
	repo      Repository
	providers *Registry
	locker    rowLocker
	orders    orderPayer
	escrow    holdCreator
	notifier  notifier.Notifier
	metrics   transitionRecorder
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("payment repository required")
	case params.Providers == nil:
		return nil, fmt.Errorf("payment providers required")
	case params.Locker == nil:
		return nil, fmt.Errorf("row locker required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order payer required")
	case params.Escrow == nil:
		return nil, fmt.Errorf("escrow required")
	}
	n := params.Notifier
	if n == nil {
		n = notifier.Nop{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repo,
		providers: params.Providers,
		locker:    params.Locker,
		orders:    params.Orders,
		escrow:    params.Escrow,
		notifier:  n,
		metrics:   params.Metrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Initiate(ctx context.Context, buyer auth.Actor, input InitiateInput) (*models.Payment, error) {
	provider, err := s.providers.Get(input.Provider)
	if err != nil {
		return nil, err
	}

	var (
		payment *models.Payment
		order   *models.Order
		resumed bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.locker.LockOrder(ctx, tx, input.OrderID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		if order.BuyerID != buyer.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can pay for this order")
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
		}

		repo := s.repo.WithTx(tx)
		existing, err := repo.FindPendingByOrder(ctx, order.ID)
		switch {
		case err == nil:
			if existing.Provider != provider.Name() {
				return pkgerrors.New(pkgerrors.CodeConflict, "a payment with another provider is already in progress")
			}
			payment = existing
			resumed = true
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending payment")
		}

		payment = &models.Payment{
			OrderID:  order.ID,
			BuyerID:  order.BuyerID,
			Amount:   order.TotalAmount,
			Currency: order.Currency,
			Provider: provider.Name(),
			Status:   enums.PaymentStatusPending,
		}
		if err := repo.Create(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a payment is already in progress")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// A resumed attempt whose session never got attached opens it again.
	// Both gateways key sessions on the payment id, so this does not charge
	// twice.
	if resumed && payment.ProviderReferenceID != nil {
		return payment, nil
	}

	// The gateway call happens outside any transaction so no row lock is
	// held across network I/O.
	session, err := provider.CreateSession(ctx, SessionRequest{
		PaymentID:   payment.ID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		SourceID:    input.SourceID,
	})
	if err != nil {
		s.failInitiation(ctx, payment, err)
		return nil, err
	}

	if err := s.repo.AttachSession(ctx, payment.ID, *session); err != nil {
		return nil, err
	}
	payment.ProviderReferenceID = &session.Reference
	payment.RedirectURL = session.RedirectURL

	s.transitioned(ctx, "payment.initiated", payment)
	return payment, nil
}

func (s *service) failInitiation(ctx context.Context, payment *models.Payment, cause error) {
	reason := "session creation failed"
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Settle(ctx, payment, enums.PaymentStatusFailed, &reason, s.now())
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "payment_id", payment.ID.String()), "mark payment failed after gateway error", err)
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"cause":      cause.Error(),
	}), "payment session creation failed")
}

func (s *service) Authenticate(_ context.Context, providerName string, payload []byte, signature string) (*Callback, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	if !provider.VerifySignature(payload, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback signature")
	}
	cb, err := provider.ParseCallback(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed callback payload")
	}
	return cb, nil
}

func (s *service) HandleCallback(ctx context.Context, providerName string, payload []byte, signature string) (*CallbackResult, error) {
	cb, err := s.Authenticate(ctx, providerName, payload, signature)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, cb)
}

func (s *service) Apply(ctx context.Context, cb *Callback) (*CallbackResult, error) {
	if cb == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback required")
	}
	if cb.Status == CallbackPending {
		return &CallbackResult{Outcome: OutcomeIgnored}, nil
	}

	// Resolve the order first so locks are taken order then payment, the
	// same order cancellation uses.
	found, err := s.resolve(ctx, cb)
	if err != nil {
		return nil, err
	}

	result := &CallbackResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.locker.LockOrder(ctx, tx, found.OrderID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		payment, err := s.locker.LockPayment(ctx, tx, found.ID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		result.Payment = payment
		result.Order = order

		if payment.Status.IsTerminal() {
			result.Outcome = OutcomeDuplicate
			return nil
		}

		repo := s.repo.WithTx(tx)
		now := s.now()
		if payment.ProviderReferenceID == nil && cb.Reference != "" {
			if err := repo.AttachSession(ctx, payment.ID, Session{Reference: cb.Reference, RedirectURL: payment.RedirectURL}); err != nil {
				return err
			}
			reference := cb.Reference
			payment.ProviderReferenceID = &reference
		}
		if cb.Status == CallbackFailed {
			reason := cb.FailureReason
			if reason == "" {
				reason = "declined by gateway"
			}
			result.Outcome = OutcomeFailed
			return repo.Settle(ctx, payment, enums.PaymentStatusFailed, &reason, now)
		}
		if !cb.Amount.Equal(payment.Amount) {
			reason := "amount_mismatch"
			result.Outcome = OutcomeFailed
			return repo.Settle(ctx, payment, enums.PaymentStatusFailed, &reason, now)
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment")
		}

		if err := repo.Settle(ctx, payment, enums.PaymentStatusCompleted, nil, now); err != nil {
			return err
		}
		if err := s.orders.MarkPaid(ctx, tx, order); err != nil {
			return err
		}
		hold, err := s.escrow.CreateHold(ctx, tx, payment, order)
		if err != nil {
			return err
		}
		result.Hold = hold
		result.Outcome = OutcomeCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case OutcomeCompleted:
		s.transitioned(ctx, "payment.completed", result.Payment)
		if s.metrics != nil {
			s.metrics.IncTransition("order", string(result.Order.Status))
		}
		s.logg.Transition(ctx, "order.paid", map[string]any{
			"order_id":       result.Order.ID.String(),
			"order_number":   result.Order.OrderNumber,
			"transaction_id": cb.TransactionID,
			"hold_id":        result.Hold.ID.String(),
		})
		s.notifier.Emit(ctx, notifier.OrderPaid(result.Order, cb.TransactionID, auth.SystemActor()))
	case OutcomeFailed:
		s.transitioned(ctx, "payment.failed", result.Payment)
	case OutcomeDuplicate:
		s.logg.Info(s.logg.WithField(ctx, "payment_id", result.Payment.ID.String()), "callback for settled payment ignored")
	}
	return result, nil
}

// resolve finds the payment a callback is about, by our id when the gateway
// echoed it and by the gateway reference otherwise.
func (s *service) resolve(ctx context.Context, cb *Callback) (*models.Payment, error) {
	var (
		payment *models.Payment
		err     error
	)
	if cb.PaymentID != uuid.Nil {
		payment, err = s.repo.FindByID(ctx, cb.PaymentID)
	} else {
		payment, err = s.repo.FindByReference(ctx, cb.Provider, cb.Reference)
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for reference")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve payment")
	case payment.Provider != cb.Provider:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for reference")
	}
	return payment, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment.BuyerID != actor.UserID && !actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another buyer")
	}
	return payment, nil
}

func (s *service) ListForOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	out := rows[:0]
	for _, p := range rows {
		if p.BuyerID == actor.UserID || actor.IsPrivileged() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *service) transitioned(ctx context.Context, name string, payment *models.Payment) {
	if s.metrics != nil {
		s.metrics.IncTransition("payment", string(payment.Status))
	}
	fields := map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   payment.OrderID.String(),
		"provider":   string(payment.Provider),
		"amount":     payment.Amount.String(),
	}
	if payment.FailureReason != nil {
		fields["failure_reason"] = *payment.FailureReason
	}
	s.logg.Transition(ctx, name, fields)
}
