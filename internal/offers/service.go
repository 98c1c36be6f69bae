package offers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/inventory"
	"github.com/angelmondragon/tradepost-backend/internal/listings"
	"github.com/angelmondragon/tradepost-backend/internal/notifier"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Service negotiates offers between buyers and sellers.
type Service interface {
	Create(ctx context.Context, buyer auth.Actor, input CreateInput) (*models.Offer, error)
	Accept(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*AcceptResult, error)
	Reject(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*models.Offer, error)
	Cancel(ctx context.Context, buyer auth.Actor, offerID uuid.UUID) (*models.Offer, error)
	// Counter rejects the offer and opens a new pending round for the same
	// buyer at a higher amount.
	Counter(ctx context.Context, seller auth.Actor, offerID uuid.UUID, amount decimal.Decimal) (*models.Offer, error)
	Get(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*models.Offer, error)
	ListForListing(ctx context.Context, seller auth.Actor, listingID uuid.UUID, params pagination.Params) (pagination.Page[models.Offer], error)
	ListForBuyer(ctx context.Context, buyer auth.Actor, params pagination.Params) (pagination.Page[models.Offer], error)
	// ExpireDue flips overdue pending offers to expired and reports how many
	// were changed.
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// CreateInput is a buyer's opening offer.
type CreateInput struct {
	ListingID         uuid.UUID
	Amount            decimal.Decimal
	ShippingAddressID *uuid.UUID
	Message           *string
}

// AcceptResult is everything an acceptance commits together.
type AcceptResult struct {
	Offer *models.Offer
	Order *models.Order
}

// Config holds the negotiation policy.
type Config struct {
	MinOfferPercent int
	TTL             time.Duration
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rowLocker interface {
	LockListing(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode inventory.Mode) (*models.Listing, error)
	LockOffer(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode inventory.Mode) (*models.Offer, error)
}

type orderCreator interface {
	CreateFromOffer(ctx context.Context, tx *gorm.DB, offer *models.Offer, listing *models.Listing) (*models.Order, error)
}

type addressResolver interface {
	GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*models.ShippingAddress, error)
}

type transitionRecorder interface {
	IncTransition(entity, status string)
}

// ServiceParams wires the offer engine.
type ServiceParams struct {
	Config    Config
	Tx        txRunner
	Repo      Repository
	Listings  listings.Repository
	Locker    rowLocker
	Guard     inventory.Guard
	Orders    orderCreator
	Addresses addressResolver
	Notifier  notifier.Notifier
	Metrics   transitionRecorder
	Logger    *logger.Logger
}

type service struct {
	cfg       Config
	tx        txRunner
	repo      Repository
	listings  listings.Repository
	locker    rowLocker
	guard     inventory.Guard
	orders    orderCreator
	addresses addressResolver
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
		return nil, fmt.Errorf("offer repository required")
	case params.Listings == nil:
		return nil, fmt.Errorf("listing repository required")
	case params.Locker == nil:
		return nil, fmt.Errorf("row locker required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order creator required")
	case params.Addresses == nil:
		return nil, fmt.Errorf("address resolver required")
	}
	if params.Config.MinOfferPercent < 0 || params.Config.MinOfferPercent > 100 {
		return nil, fmt.Errorf("min offer percent must be between 0 and 100")
	}
	if params.Config.TTL <= 0 {
		return nil, fmt.Errorf("offer ttl must be positive")
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
		cfg:       params.Config,
		tx:        params.Tx,
		repo:      params.Repo,
		listings:  params.Listings,
		locker:    params.Locker,
		guard:     guard,
		orders:    params.Orders,
		addresses: params.Addresses,
		notifier:  n,
		metrics:   params.Metrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func offerExpired() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "offer has expired")
}

func (s *service) Create(ctx context.Context, buyer auth.Actor, input CreateInput) (*models.Offer, error) {
	if buyer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(ctx, inventory.ResourceListing, input.ListingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var offer *models.Offer
	var expiredIDs []uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		expiredIDs = expiredIDs[:0]
		listing, err := s.locker.LockListing(ctx, tx, input.ListingID, inventory.ModeNonBlocking)
		if err != nil {
			return err
		}
		if listing.Status != enums.ListingStatusActive {
			return listings.ErrUnavailable(listing.Status)
		}
		if listing.SellerID == buyer.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "sellers cannot make offers on their own listings")
		}
		if input.Amount.GreaterThan(listing.Price) {
			return pkgerrors.New(pkgerrors.CodeValidation, "offer cannot exceed the listing price")
		}
		if !money.AtLeastPercent(input.Amount, listing.Price, s.cfg.MinOfferPercent) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("offer must be at least %d%% of the listing price", s.cfg.MinOfferPercent))
		}

		repo := s.repo.WithTx(tx)
		now := s.now()
		overdue, err := repo.LockOverduePending(ctx, listing.ID, buyer.UserID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock overdue offers")
		}
		for i := range overdue {
			if err := repo.UpdateStatus(ctx, &overdue[i], enums.OfferStatusExpired, now); err != nil {
				return err
			}
			expiredIDs = append(expiredIDs, overdue[i].ID)
		}

		pending, err := repo.HasPending(ctx, listing.ID, buyer.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check pending offers")
		}
		if pending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a pending offer on this listing already exists")
		}
		if input.ShippingAddressID != nil {
			if _, err := s.addresses.GetOwned(ctx, tx, buyer.UserID, *input.ShippingAddressID); err != nil {
				return err
			}
		}

		offer = &models.Offer{
			ListingID:         listing.ID,
			BuyerID:           buyer.UserID,
			SellerID:          listing.SellerID,
			Amount:            input.Amount,
			Status:            enums.OfferStatusPending,
			ExpiresAt:         now.Add(s.cfg.TTL),
			Version:           1,
			Round:             1,
			ShippingAddressID: input.ShippingAddressID,
			Message:           input.Message,
		}
		return s.insert(ctx, repo, offer)
	})
	if err != nil {
		return nil, err
	}

	for _, id := range expiredIDs {
		s.logg.Transition(ctx, "offer.expired", map[string]any{"offer_id": id.String()})
	}
	s.transitioned(ctx, "offer.created", offer)
	s.notifier.Emit(ctx, notifier.OfferCreated(offer, buyer))
	return offer, nil
}

func (s *service) Accept(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*AcceptResult, error) {
	var result *AcceptResult
	expired := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		offer, err := s.locker.LockOffer(ctx, tx, offerID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		if !canRespond(actor, offer) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the other party can accept this offer")
		}
		if offer.Status != enums.OfferStatusPending {
			return notPending(offer)
		}
		repo := s.repo.WithTx(tx)
		now := s.now()
		if offer.IsExpiredAt(now) {
			expired = true
			return repo.UpdateStatus(ctx, offer, enums.OfferStatusExpired, now)
		}

		listing, err := s.locker.LockListing(ctx, tx, offer.ListingID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		if listing.Status != enums.ListingStatusActive {
			return listings.ErrUnavailable(listing.Status)
		}

		if err := repo.UpdateStatus(ctx, offer, enums.OfferStatusAccepted, now); err != nil {
			return err
		}
		if _, _, err := repo.RejectOtherPending(ctx, listing.ID, offer.ID, now); err != nil {
			return err
		}
		if err := s.listings.WithTx(tx).SetStatus(ctx, listing.ID, enums.ListingStatusActive, enums.ListingStatusReserved); err != nil {
			return err
		}
		listing.Status = enums.ListingStatusReserved

		order, err := s.orders.CreateFromOffer(ctx, tx, offer, listing)
		if err != nil {
			return err
		}
		result = &AcceptResult{Offer: offer, Order: order}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, offerExpired()
	}

	s.transitioned(ctx, "offer.accepted", result.Offer)
	s.notifier.Emit(ctx, notifier.OfferAccepted(result.Offer, result.Order, actor))
	s.notifier.Emit(ctx, notifier.OrderCreated(result.Order, actor))
	return result, nil
}

func (s *service) Reject(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*models.Offer, error) {
	return s.close(ctx, offerID, enums.OfferStatusRejected, func(offer *models.Offer) error {
		if !canRespond(actor, offer) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the other party can reject this offer")
		}
		return nil
	})
}

func (s *service) Cancel(ctx context.Context, buyer auth.Actor, offerID uuid.UUID) (*models.Offer, error) {
	return s.close(ctx, offerID, enums.OfferStatusCancelled, func(offer *models.Offer) error {
		if offer.BuyerID != buyer.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can cancel this offer")
		}
		return nil
	})
}

// close runs a guarded pending -> terminal transition with lazy expiry.
func (s *service) close(ctx context.Context, offerID uuid.UUID, to enums.OfferStatus, authorize func(*models.Offer) error) (*models.Offer, error) {
	var offer *models.Offer
	expired := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		offer, err = s.locker.LockOffer(ctx, tx, offerID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		if err := authorize(offer); err != nil {
			return err
		}
		if offer.Status != enums.OfferStatusPending {
			return notPending(offer)
		}
		now := s.now()
		if offer.IsExpiredAt(now) {
			expired = true
			return s.repo.WithTx(tx).UpdateStatus(ctx, offer, enums.OfferStatusExpired, now)
		}
		return s.repo.WithTx(tx).UpdateStatus(ctx, offer, to, now)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, offerExpired()
	}
	s.transitioned(ctx, "offer."+string(to), offer)
	return offer, nil
}

func (s *service) Counter(ctx context.Context, seller auth.Actor, offerID uuid.UUID, amount decimal.Decimal) (*models.Offer, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	var counter *models.Offer
	expired := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		original, err := s.locker.LockOffer(ctx, tx, offerID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		if original.SellerID != seller.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can counter this offer")
		}
		if original.Status != enums.OfferStatusPending {
			return notPending(original)
		}
		repo := s.repo.WithTx(tx)
		now := s.now()
		if original.IsExpiredAt(now) {
			expired = true
			return repo.UpdateStatus(ctx, original, enums.OfferStatusExpired, now)
		}

		listing, err := s.locker.LockListing(ctx, tx, original.ListingID, inventory.ModeBlocking)
		if err != nil {
			return err
		}
		if listing.Status != enums.ListingStatusActive {
			return listings.ErrUnavailable(listing.Status)
		}
		if !amount.GreaterThan(original.Amount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "counter offer must be higher than the current offer")
		}
		if amount.GreaterThan(listing.Price) {
			return pkgerrors.New(pkgerrors.CodeValidation, "counter offer cannot exceed the listing price")
		}

		if err := repo.UpdateStatus(ctx, original, enums.OfferStatusRejected, now); err != nil {
			return err
		}
		originalID := original.ID
		counter = &models.Offer{
			ListingID:         original.ListingID,
			BuyerID:           original.BuyerID,
			SellerID:          original.SellerID,
			Amount:            amount,
			Status:            enums.OfferStatusPending,
			ExpiresAt:         now.Add(s.cfg.TTL),
			Version:           1,
			Round:             original.Round + 1,
			CounterOfID:       &originalID,
			ShippingAddressID: original.ShippingAddressID,
		}
		return s.insert(ctx, repo, counter)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, offerExpired()
	}

	s.transitioned(ctx, "offer.countered", counter)
	s.notifier.Emit(ctx, notifier.OfferCreated(counter, seller))
	return counter, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*models.Offer, error) {
	offer, err := s.repo.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load offer")
	}
	if !isParty(actor, offer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "offer belongs to other users")
	}
	if !offer.IsExpiredAt(s.now()) {
		return offer, nil
	}
	if _, err := s.expireOne(ctx, offer.ID, inventory.ModeBlocking); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, offer.ID)
}

func (s *service) ListForListing(ctx context.Context, seller auth.Actor, listingID uuid.UUID, params pagination.Params) (pagination.Page[models.Offer], error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pagination.Page[models.Offer]{}, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return pagination.Page[models.Offer]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
	}
	if listing.SellerID != seller.UserID && !seller.IsPrivileged() {
		return pagination.Page[models.Offer]{}, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can list offers on this listing")
	}
	rows, err := s.repo.ListByListing(ctx, listingID, params)
	if err != nil {
		return pagination.Page[models.Offer]{}, wrapList(err)
	}
	return pagination.BuildPage(s.maskExpired(rows), params.Limit, offerCursor), nil
}

func (s *service) ListForBuyer(ctx context.Context, buyer auth.Actor, params pagination.Params) (pagination.Page[models.Offer], error) {
	rows, err := s.repo.ListByBuyer(ctx, buyer.UserID, params)
	if err != nil {
		return pagination.Page[models.Offer]{}, wrapList(err)
	}
	return pagination.BuildPage(s.maskExpired(rows), params.Limit, offerCursor), nil
}

func (s *service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListExpiredPending(ctx, now.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired offers")
	}
	expired := 0
	var errs error
	for _, offer := range due {
		changed, err := s.expireOne(ctx, offer.ID, inventory.ModeNonBlocking)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("expire offer %s: %w", offer.ID, err))
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, errs
}

func (s *service) expireOne(ctx context.Context, offerID uuid.UUID, mode inventory.Mode) (bool, error) {
	changed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		offer, err := s.locker.LockOffer(ctx, tx, offerID, mode)
		if err != nil {
			return err
		}
		now := s.now()
		if !offer.IsExpiredAt(now) {
			return nil
		}
		changed = true
		return s.repo.WithTx(tx).UpdateStatus(ctx, offer, enums.OfferStatusExpired, now)
	})
	if err == nil && changed {
		s.logg.Transition(ctx, "offer.expired", map[string]any{"offer_id": offerID.String()})
	}
	return changed, err
}

func (s *service) insert(ctx context.Context, repo Repository, offer *models.Offer) error {
	if err := repo.Create(ctx, offer); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a pending offer on this listing already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create offer")
	}
	return nil
}

// maskExpired reports overdue pending offers as expired without writing;
// the sweep or the next targeted read persists the change.
func (s *service) maskExpired(rows []models.Offer) []models.Offer {
	now := s.now()
	for i := range rows {
		if rows[i].IsExpiredAt(now) {
			rows[i].Status = enums.OfferStatusExpired
		}
	}
	return rows
}

func (s *service) transitioned(ctx context.Context, name string, offer *models.Offer) {
	if s.metrics != nil {
		s.metrics.IncTransition("offer", string(offer.Status))
	}
	s.logg.Transition(ctx, name, map[string]any{
		"offer_id":   offer.ID.String(),
		"listing_id": offer.ListingID.String(),
		"buyer_id":   offer.BuyerID.String(),
		"amount":     offer.Amount.String(),
		"round":      offer.Round,
	})
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(money.Round(amount)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount allows at most two decimals")
	}
	return nil
}

// canRespond: the seller answers buyer offers; on counter rounds the buyer
// may answer too.
func canRespond(actor auth.Actor, offer *models.Offer) bool {
	if actor.UserID == offer.SellerID {
		return true
	}
	return offer.CounterOfID != nil && actor.UserID == offer.BuyerID
}

func isParty(actor auth.Actor, offer *models.Offer) bool {
	return actor.UserID == offer.BuyerID || actor.UserID == offer.SellerID || actor.IsPrivileged()
}

func notPending(offer *models.Offer) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "offer is already "+string(offer.Status))
}

func offerCursor(o models.Offer) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

func wrapList(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list offers")
}
