package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Repository persists listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListActive(ctx context.Context, params pagination.Params) ([]models.Listing, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) ([]models.Listing, error)
	// SetStatus moves the listing from one status to another. It fails with
	// Conflict when the row is no longer in the expected status.
	SetStatus(ctx context.Context, id uuid.UUID, from, to enums.ListingStatus) error
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
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

func (r *repository) Create(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) ListActive(ctx context.Context, params pagination.Params) ([]models.Listing, error) {
	query, err := pagination.ApplyDesc(r.db.WithContext(ctx).Where("status = ?", enums.ListingStatusActive), params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Listing
	return rows, query.Find(&rows).Error
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) ([]models.Listing, error) {
	query, err := pagination.ApplyDesc(r.db.WithContext(ctx).Where("seller_id = ?", sellerID), params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Listing
	return rows, query.Find(&rows).Error
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to enums.ListingStatus) error {
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "listing cannot move from "+string(from)+" to "+string(to))
	}
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update listing status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "listing status changed concurrently")
	}
	return nil
}

func (r *repository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, enums.ListingStatusDraft).
		Updates(map[string]any{
			"status":       enums.ListingStatusActive,
			"published_at": at,
			"version":      gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "publish listing")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "listing status changed concurrently")
	}
	return nil
}
