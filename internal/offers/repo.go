package offers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Repository persists offers. Status writes compare both status and version.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, offer *models.Offer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	HasPending(ctx context.Context, listingID, buyerID uuid.UUID) (bool, error)
	// LockOverduePending locks the buyer's pending offers on a listing whose
	// expiry is at or before now.
	LockOverduePending(ctx context.Context, listingID, buyerID uuid.UUID, now time.Time) ([]models.Offer, error)
	ListByListing(ctx context.Context, listingID uuid.UUID, params pagination.Params) ([]models.Offer, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Offer, error)
	// UpdateStatus moves offer to status and bumps its version in memory on
	// success.
	UpdateStatus(ctx context.Context, offer *models.Offer, to enums.OfferStatus, at time.Time) error
	// RejectOtherPending closes every other pending offer on the listing.
	// Offers already past expiry become expired, the rest rejected.
	RejectOtherPending(ctx context.Context, listingID, exceptID uuid.UUID, at time.Time) (rejected, expired int64, err error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Offer, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, offer *models.Offer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repository) HasPending(ctx context.Context, listingID, buyerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("listing_id = ? AND buyer_id = ? AND status = ?", listingID, buyerID, enums.OfferStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) LockOverduePending(ctx context.Context, listingID, buyerID uuid.UUID, now time.Time) ([]models.Offer, error) {
	var rows []models.Offer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("listing_id = ? AND buyer_id = ? AND status = ? AND expires_at <= ?",
			listingID, buyerID, enums.OfferStatusPending, now).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByListing(ctx context.Context, listingID uuid.UUID, params pagination.Params) ([]models.Offer, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("listing_id = ?", listingID), params)
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Offer, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("buyer_id = ?", buyerID), params)
}

func (r *repository) list(ctx context.Context, base *gorm.DB, params pagination.Params) ([]models.Offer, error) {
	query, err := pagination.ApplyDesc(base, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Offer
	return rows, query.Find(&rows).Error
}

func (r *repository) UpdateStatus(ctx context.Context, offer *models.Offer, to enums.OfferStatus, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status = ? AND version = ?", offer.ID, offer.Status, offer.Version).
		Updates(map[string]any{
			"status":       to,
			"version":      offer.Version + 1,
			"responded_at": at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update offer status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "offer changed concurrently")
	}
	offer.Status = to
	offer.Version++
	offer.RespondedAt = &at
	return nil
}

func (r *repository) RejectOtherPending(ctx context.Context, listingID, exceptID uuid.UUID, at time.Time) (int64, int64, error) {
	others := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.Offer{}).
			Where("listing_id = ? AND id <> ? AND status = ?", listingID, exceptID, enums.OfferStatusPending)
	}
	expired := others().
		Where("expires_at <= ?", at).
		Updates(map[string]any{
			"status":       enums.OfferStatusExpired,
			"version":      gorm.Expr("version + 1"),
			"responded_at": at,
		})
	if expired.Error != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, expired.Error, "expire competing offers")
	}
	rejected := others().
		Updates(map[string]any{
			"status":       enums.OfferStatusRejected,
			"version":      gorm.Expr("version + 1"),
			"responded_at": at,
		})
	if rejected.Error != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, rejected.Error, "reject competing offers")
	}
	return rejected.RowsAffected, expired.RowsAffected, nil
}

func (r *repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Offer, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Offer
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.OfferStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
