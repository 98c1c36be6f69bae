package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/commission"
	"github.com/angelmondragon/tradepost-backend/internal/escrow"
	"github.com/angelmondragon/tradepost-backend/internal/inventory"
	"github.com/angelmondragon/tradepost-backend/internal/listings"
	"github.com/angelmondragon/tradepost-backend/internal/notifier"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Service owns order creation and the order state machine.
type Service interface {
	// CreateFromOffer runs inside the offer acceptance transaction. The
	// listing must already be locked and reserved by the caller.
	CreateFromOffer(ctx context.Context, tx *gorm.DB, offer *models.Offer, listing *models.Listing) (*models.Order, error)
	CreateDirectOrder(ctx context.Context, buyer auth.Actor, input DirectOrderInput) (*models.Order, error)
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyer auth.Actor, params pagination.Params, filters ListFilters) (pagination.Page[models.Order], error)
	ListForSeller(ctx context.Context, seller auth.Actor, params pagination.Params, filters ListFilters) (pagination.Page[models.Order], error)
	Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	MarkPreparing(ctx context.Context, seller auth.Actor, orderID uuid.UUID) (*models.Order, error)
	MarkShipped(ctx context.Context, seller auth.Actor, orderID uuid.UUID, input ShipmentInput) (*models.Order, error)
	MarkDelivered(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	ConfirmReceipt(ctx context.Context, buyer auth.Actor, orderID uuid.UUID) (*models.Order, error)
	RequestRefund(ctx context.Context, buyer auth.Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	ProcessRefund(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input RefundInput) (*models.Order, error)
	AdminSetStatus(ctx context.Context, actor auth.Actor, orderID uuid.UUID, to enums.OrderStatus, expectedVersion int) (*models.Order, error)
	// MarkPaid runs inside the payment confirmation transaction on an order
	// the caller already locked.
	MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order) error
	// ReleaseDue completes delivered orders whose escrow window elapsed.
	ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rowLocker interface {
	LockListing(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode inventory.Mode) (*models.Listing, error)
	LockOrder(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode inventory.Mode) (*models.Order, error)
}

type addressResolver interface {
	GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*models.ShippingAddress, error)
}

type commissionCalculator interface {
	Compute(ctx context.Context, tx *gorm.DB, input commission.Input) (commission.Result, error)
}

type escrowLedger interface {
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor) (*models.PaymentHold, error)
	Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, refund escrow.RefundInput, actor auth.Actor) (*models.PaymentHold, error)
}

type transitionRecorder interface {
	IncTransition(entity, status string)
}

// ServiceParams wires the order engine.
type ServiceParams struct {
	Tx         txRunner
	Repo       Repository
	Listings   listings.Repository
	Locker     rowLocker
	Guard      inventory.Guard
	Commission commissionCalculator
	Addresses  addressResolver
	Escrow     escrowLedger
	Notifier   notifier.Notifier
	Metrics    transitionRecorder
	Logger     *logger.Logger
}

type service struct {
	tx         txRunner
	repo       Repository
	listings   listings.Repository
	locker     rowLocker
	guard      inventory.Guard
	commission commissionCalculator
	addresses  addressResolver
	escrow     escrowLedger
	notifier   notifier.Notifier
	metrics    transitionRecorder
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("order repository required")
	case params.Listings == nil:
		return nil, fmt.Errorf("listing repository required")
	case params.Locker == nil:
		return nil, fmt.Errorf("row locker required")
	case params.Commission == nil:
		return nil, fmt.Errorf("commission calculator required")
	case params.Addresses == nil:
		return nil, fmt.Errorf("address resolver required")
	case params.Escrow == nil:
		return nil, fmt.Errorf("escrow ledger required")
	}
	guard := params.Guard
	if guard == nil {
		guard = inventory.NopGuard{}
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
		tx:         params.Tx,
		repo:       params.Repo,
		listings:   params.Listings,
		locker:     params.Locker,
		guard:      guard,
		commission: params.Commission,
		addresses:  params.Addresses,
		escrow:     params.Escrow,
		notifier:   n,
		metrics:    params.Metrics,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateFromOffer(ctx context.Context, tx *gorm.DB, offer *models.Offer, listing *models.Listing) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order creation requires a transaction")
	}
	if offer == nil || listing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "offer and listing required")
	}
	if offer.Status != enums.OfferStatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders are created from accepted offers only")
	}
	offerID := offer.ID
	order, err := s.build(ctx, tx, listing, offer.BuyerID, offer.ShippingAddressID)
	if err != nil {
		return nil, err
	}
	order.OfferID = &offerID
	order.TotalAmount = offer.Amount
	if err := s.applyCommission(ctx, tx, order, listing); err != nil {
		return nil, err
	}
	if err := s.insert(ctx, s.repo.WithTx(tx), order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) CreateDirectOrder(ctx context.Context, buyer auth.Actor, input DirectOrderInput) (*models.Order, error) {
	if buyer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	if input.ShippingAddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
	}

	release, err := s.guard.Acquire(ctx, inventory.ResourceListing, input.ListingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		listing, err := s.locker.LockListing(ctx, tx, input.ListingID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		if listing.Status != enums.ListingStatusActive {
			return listings.ErrUnavailable(listing.Status)
		}
		if listing.SellerID == buyer.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "sellers cannot buy their own listings")
		}

		addressID := input.ShippingAddressID
		order, err = s.build(ctx, tx, listing, buyer.UserID, &addressID)
		if err != nil {
			return err
		}
		order.TotalAmount = listing.Price
		if err := s.applyCommission(ctx, tx, order, listing); err != nil {
			return err
		}
		if err := s.listings.WithTx(tx).SetStatus(ctx, listing.ID, enums.ListingStatusActive, enums.ListingStatusReserved); err != nil {
			return err
		}
		return s.insert(ctx, s.repo.WithTx(tx), order)
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, "order.created", order, nil)
	s.notifier.Emit(ctx, notifier.OrderCreated(order, buyer))
	return order, nil
}

// build assembles the order row shared by both creation paths.
func (s *service) build(ctx context.Context, tx *gorm.DB, listing *models.Listing, buyerID uuid.UUID, addressID *uuid.UUID) (*models.Order, error) {
	number, err := NewOrderNumber(s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}
	order := &models.Order{
		OrderNumber: number,
		ListingID:   listing.ID,
		BuyerID:     buyerID,
		SellerID:    listing.SellerID,
		Currency:    listing.Currency,
		Status:      enums.OrderStatusPendingPayment,
		Version:     1,
	}
	if addressID != nil {
		address, err := s.addresses.GetOwned(ctx, tx, buyerID, *addressID)
		if err != nil {
			return nil, err
		}
		order.ShippingAddress = address.Snapshot()
	}
	return order, nil
}

func (s *service) applyCommission(ctx context.Context, tx *gorm.DB, order *models.Order, listing *models.Listing) error {
	result, err := s.commission.Compute(ctx, tx, commission.Input{
		Amount:     order.TotalAmount,
		SellerType: listing.SellerType,
		CategoryID: listing.CategoryID,
	})
	if err != nil {
		return err
	}
	if result.Amount.GreaterThan(order.TotalAmount) {
		return pkgerrors.New(pkgerrors.CodeInternal, "commission exceeds order total")
	}
	order.CommissionAmount = result.Amount
	order.CommissionRuleID = result.RuleID
	order.CommissionRuleName = result.RuleName
	order.CommissionRate = result.Rate
	order.CommissionMinApplied = result.MinApplied
	order.CommissionMaxApplied = result.MaxApplied
	order.CommissionFallback = result.Fallback
	return nil
}

func (s *service) insert(ctx context.Context, repo Repository, order *models.Order) error {
	if err := repo.Create(ctx, order); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "listing already has an open order")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	return nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !isParty(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to other users")
	}
	return order, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyer auth.Actor, params pagination.Params, filters ListFilters) (pagination.Page[models.Order], error) {
	rows, err := s.repo.ListByBuyer(ctx, buyer.UserID, params, filters)
	if err != nil {
		return pagination.Page[models.Order]{}, wrapList(err)
	}
	return pagination.BuildPage(rows, params.Limit, orderCursor), nil
}

func (s *service) ListForSeller(ctx context.Context, seller auth.Actor, params pagination.Params, filters ListFilters) (pagination.Page[models.Order], error) {
	rows, err := s.repo.ListBySeller(ctx, seller.UserID, params, filters)
	if err != nil {
		return pagination.Page[models.Order]{}, wrapList(err)
	}
	return pagination.BuildPage(rows, params.Limit, orderCursor), nil
}

// Cancel closes an unpaid order, or routes a paid one through the refund
// path: buyers get refund_requested, platform actors cancel and refund.
func (s *service) Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.mutate(ctx, actor, orderID, func(tx *gorm.DB, order *models.Order, ch *change) error {
		if order.BuyerID != actor.UserID && !actor.IsPrivileged() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can cancel this order")
		}
		ch.reason = strings.TrimSpace(reason)
		switch order.Status {
		case enums.OrderStatusPendingPayment:
			return s.transition(ctx, tx, order, enums.OrderStatusCancelled, actor, ch)
		case enums.OrderStatusPaid:
			if actor.IsPrivileged() {
				return s.transition(ctx, tx, order, enums.OrderStatusCancelled, actor, ch)
			}
			return s.transition(ctx, tx, order, enums.OrderStatusRefundRequested, actor, ch)
		default:
			return illegal(order.Status, enums.OrderStatusCancelled)
		}
	})
}

func (s *service) MarkPreparing(ctx context.Context, seller auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.mutate(ctx, seller, orderID, func(tx *gorm.DB, order *models.Order, ch *change) error {
		if order.SellerID != seller.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can prepare this order")
		}
		return s.transition(ctx, tx, order, enums.OrderStatusPreparing, seller, ch)
	})
}

func (s *service) MarkShipped(ctx context.Context, seller auth.Actor, orderID uuid.UUID, input ShipmentInput) (*models.Order, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	carrier := strings.TrimSpace(input.Carrier)
	if tracking == "" || carrier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number and carrier are required")
	}
	return s.mutate(ctx, seller, orderID, func(tx *gorm.DB, order *models.Order, ch *change) error {
		if order.SellerID != seller.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can ship this order")
		}
		ch.extra["tracking_number"] = tracking
		ch.extra["carrier"] = carrier
		if err := s.transition(ctx, tx, order, enums.OrderStatusShipped, seller, ch); err != nil {
			return err
		}
		order.TrackingNumber = &tracking
		order.Carrier = &carrier
		return nil
	})
}

func (s *service) MarkDelivered(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	if !actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delivery is confirmed by the platform")
	}
	return s.mutate(ctx, actor, orderID, func(tx *gorm.DB, order *models.Order, ch *change) error {
		return s.transition(ctx, tx, order, enums.OrderStatusDelivered, actor, ch)
	})
}

func (s *service) ConfirmReceipt(ctx context.Context, buyer auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.mutate(ctx, buyer, orderID, func(tx *gorm.DB, order *models.Order, ch *change) error {
		if order.BuyerID != buyer.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm receipt")
		}
		return s.transition(ctx, tx, order, enums.OrderStatusCompleted, buyer, ch)
	})
}

func (s *service) RequestRefund(ctx context.Context, buyer auth.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
	}
	return s.mutate(ctx, buyer, orderID, func(tx *gorm.DB, order *models.Order, ch *change) error {
		if order.BuyerID != buyer.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can request a refund")
		}
		ch.reason = reason
		return s.transition(ctx, tx, order, enums.OrderStatusRefundRequested, buyer, ch)
	})
}

func (s *service) ProcessRefund(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input RefundInput) (*models.Order, error) {
	if !actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "refunds are processed by the platform")
	}
	return s.mutate(ctx, actor, orderID, func(tx *gorm.DB, order *models.Order, ch *change) error {
		ch.refund = escrow.RefundInput{Amount: input.Amount, Reason: strings.TrimSpace(input.Reason)}
		return s.transition(ctx, tx, order, enums.OrderStatusRefunded, actor, ch)
	})
}

func (s *service) AdminSetStatus(ctx context.Context, actor auth.Actor, orderID uuid.UUID, to enums.OrderStatus, expectedVersion int) (*models.Order, error) {
	if !actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "status overrides require an admin")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if to == enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders are marked paid by payment confirmation only")
	}
	return s.mutate(ctx, actor, orderID, func(tx *gorm.DB, order *models.Order, ch *change) error {
		if order.Version != expectedVersion {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently, reload and retry").
				WithDetails(map[string]any{"currentVersion": order.Version})
		}
		ch.reason = "admin override"
		return s.transition(ctx, tx, order, to, actor, ch)
	})
}

func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "marking an order paid requires a transaction")
	}
	return s.transition(ctx, tx, order, enums.OrderStatusPaid, auth.SystemActor(), newChange())
}

func (s *service) ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := s.repo.ListReleasable(ctx, now.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list releasable orders")
	}
	system := auth.SystemActor()
	released := 0
	var errs error
	for _, id := range ids {
		var order *models.Order
		ch := newChange()
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			order, err = s.locker.LockOrder(ctx, tx, id, inventory.ModeNonBlocking)
			if err != nil {
				return err
			}
			if order.Status != enums.OrderStatusDelivered {
				order = nil
				return nil
			}
			return s.transition(ctx, tx, order, enums.OrderStatusCompleted, system, ch)
		})
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("release order %s: %w", id, err))
			continue
		}
		if order == nil {
			continue
		}
		released++
		s.afterCommit(ctx, order, ch)
	}
	return released, errs
}

// change collects the column writes and post-commit events of a transition.
type change struct {
	from   enums.OrderStatus
	extra  map[string]any
	reason string
	refund escrow.RefundInput
	events []notifier.Event
}

func newChange() *change {
	return &change{extra: map[string]any{}}
}

// mutate locks the order, runs fn in one transaction, and emits the
// collected events once it commits.
func (s *service) mutate(ctx context.Context, actor auth.Actor, orderID uuid.UUID, fn func(tx *gorm.DB, order *models.Order, ch *change) error) (*models.Order, error) {
	if actor.UserID == uuid.Nil && !actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity required")
	}
	var order *models.Order
	ch := newChange()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.locker.LockOrder(ctx, tx, orderID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		if !isParty(actor, order) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to other users")
		}
		return fn(tx, order, ch)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, order, ch)
	return order, nil
}

// transition validates from -> to, runs the side effects the target status
// requires, and writes the status with a version check.
func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor auth.Actor, ch *change) error {
	from := order.Status
	if !CanTransition(from, to) {
		return illegal(from, to)
	}
	now := s.now()
	listingRepo := s.listings.WithTx(tx)

	switch to {
	case enums.OrderStatusPaid:
		if err := listingRepo.SetStatus(ctx, order.ListingID, enums.ListingStatusReserved, enums.ListingStatusSold); err != nil {
			return err
		}
		ch.extra["paid_at"] = now
		order.PaidAt = &now

	case enums.OrderStatusShipped:
		ch.extra["shipped_at"] = now
		order.ShippedAt = &now

	case enums.OrderStatusDelivered:
		ch.extra["delivered_at"] = now
		order.DeliveredAt = &now

	case enums.OrderStatusCompleted:
		hold, err := s.escrow.Release(ctx, tx, order.ID, actor)
		if err != nil {
			return err
		}
		ch.extra["completed_at"] = now
		order.CompletedAt = &now
		ch.events = append(ch.events, notifier.EscrowReleased(hold, actor))

	case enums.OrderStatusRefundRequested:
		if ch.reason != "" {
			ch.extra["cancel_reason"] = ch.reason
			order.CancelReason = &ch.reason
		}

	case enums.OrderStatusCancelled:
		if err := s.cancelEffects(ctx, tx, order, actor, ch, now); err != nil {
			return err
		}
		ch.extra["cancelled_at"] = now
		order.CancelledAt = &now
		if ch.reason != "" {
			ch.extra["cancel_reason"] = ch.reason
			order.CancelReason = &ch.reason
		}
		ch.events = append(ch.events, notifier.OrderCancelled(order, ch.reason, actor))

	case enums.OrderStatusRefunded:
		if err := s.refund(ctx, tx, order, actor, ch); err != nil {
			return err
		}
		if err := listingRepo.SetStatus(ctx, order.ListingID, enums.ListingStatusSold, enums.ListingStatusActive); err != nil {
			return err
		}
		ch.extra["refunded_at"] = now
		order.RefundedAt = &now
	}

	ch.from = from
	return s.repo.WithTx(tx).UpdateStatus(ctx, order, to, ch.extra)
}

// cancelEffects restores the listing. Unpaid orders also cancel their offer
// and close open payments; paid orders refund in full through escrow.
func (s *service) cancelEffects(ctx context.Context, tx *gorm.DB, order *models.Order, actor auth.Actor, ch *change, now time.Time) error {
	listingRepo := s.listings.WithTx(tx)
	if order.Status == enums.OrderStatusPaid {
		if err := s.refund(ctx, tx, order, actor, ch); err != nil {
			return err
		}
		ch.extra["refunded_at"] = now
		order.RefundedAt = &now
		return listingRepo.SetStatus(ctx, order.ListingID, enums.ListingStatusSold, enums.ListingStatusActive)
	}

	if _, err := s.locker.LockListing(ctx, tx, order.ListingID, inventory.ModeBlocking); err != nil {
		return err
	}
	if err := listingRepo.SetStatus(ctx, order.ListingID, enums.ListingStatusReserved, enums.ListingStatusActive); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	if order.OfferID != nil {
		if err := repo.CancelOffer(ctx, *order.OfferID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel linked offer")
		}
	}
	if err := repo.FailPendingPayments(ctx, order.ID, "order cancelled", now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close pending payments")
	}
	return nil
}

func (s *service) refund(ctx context.Context, tx *gorm.DB, order *models.Order, actor auth.Actor, ch *change) error {
	payment, err := s.repo.WithTx(tx).FindCompletedPayment(ctx, order.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no completed payment to refund")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load completed payment")
	}
	input := ch.refund
	if input.Reason == "" {
		input.Reason = ch.reason
	}
	if _, err := s.escrow.Cancel(ctx, tx, order.ID, input, actor); err != nil {
		return err
	}
	amount := payment.Amount
	if input.Amount != nil {
		amount = *input.Amount
	}
	ch.events = append(ch.events, notifier.OrderRefunded(order, payment, amount, actor))
	return nil
}

func (s *service) afterCommit(ctx context.Context, order *models.Order, ch *change) {
	s.transitioned(ctx, "order."+string(order.Status), order, map[string]any{"from": string(ch.from)})
	for _, event := range ch.events {
		s.notifier.Emit(ctx, event)
	}
}

func (s *service) transitioned(ctx context.Context, name string, order *models.Order, fields map[string]any) {
	if s.metrics != nil {
		s.metrics.IncTransition("order", string(order.Status))
	}
	base := map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"listing_id":   order.ListingID.String(),
		"status":       string(order.Status),
		"version":      order.Version,
	}
	for k, v := range fields {
		base[k] = v
	}
	s.logg.Transition(ctx, name, base)
}

func isParty(actor auth.Actor, order *models.Order) bool {
	return actor.UserID == order.BuyerID || actor.UserID == order.SellerID || actor.IsPrivileged()
}

func illegal(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", from, to))
}

func orderCursor(o models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

func wrapList(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
}
