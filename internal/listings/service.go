package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Service manages seller listings outside of the transaction engines.
type Service interface {
	Create(ctx context.Context, seller auth.Actor, input CreateInput) (*models.Listing, error)
	Publish(ctx context.Context, seller auth.Actor, listingID uuid.UUID) (*models.Listing, error)
	Get(ctx context.Context, actor auth.Actor, listingID uuid.UUID) (*models.Listing, error)
	ListActive(ctx context.Context, params pagination.Params) (pagination.Page[models.Listing], error)
	ListMine(ctx context.Context, seller auth.Actor, params pagination.Params) (pagination.Page[models.Listing], error)
}

// CreateInput describes a new draft listing.
type CreateInput struct {
	Title       string
	Description *string
	Price       decimal.Decimal
	CategoryID  *uuid.UUID
	// Currency is optional; when set it must match the marketplace currency.
	Currency enums.Currency
}

type service struct {
	repo     Repository
	currency enums.Currency
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, currency enums.Currency, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("listing repository required")
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("invalid listing currency %q", currency)
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     repo,
		currency: currency,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, seller auth.Actor, input CreateInput) (*models.Listing, error) {
	if seller.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if !input.Price.Equal(money.Round(input.Price)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price allows at most two decimals")
	}
	if input.Currency != "" && input.Currency != s.currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("listings are priced in %s", s.currency))
	}

	sellerType := enums.SellerTypeIndividual
	if seller.SellerType != nil && seller.SellerType.IsValid() {
		sellerType = *seller.SellerType
	}

	listing := &models.Listing{
		SellerID:    seller.UserID,
		Title:       title,
		Description: input.Description,
		Price:       input.Price,
		Currency:    s.currency,
		Status:      enums.ListingStatusDraft,
		SellerType:  sellerType,
		CategoryID:  input.CategoryID,
		Version:     1,
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create listing")
	}
	return listing, nil
}

func (s *service) Publish(ctx context.Context, seller auth.Actor, listingID uuid.UUID) (*models.Listing, error) {
	listing, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != seller.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can publish this listing")
	}
	if listing.Status != enums.ListingStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only draft listings can be published")
	}
	published := s.now()
	if err := s.repo.MarkPublished(ctx, listing.ID, published); err != nil {
		return nil, err
	}
	listing.Status = enums.ListingStatusActive
	listing.Version++
	listing.PublishedAt = &published

	s.logg.Transition(ctx, "listing.published", map[string]any{
		"listing_id": listing.ID.String(),
		"seller_id":  listing.SellerID.String(),
	})
	return listing, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, listingID uuid.UUID) (*models.Listing, error) {
	listing, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status == enums.ListingStatusDraft && listing.SellerID != actor.UserID && !actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	return listing, nil
}

func (s *service) ListActive(ctx context.Context, params pagination.Params) (pagination.Page[models.Listing], error) {
	rows, err := s.repo.ListActive(ctx, params)
	if err != nil {
		return pagination.Page[models.Listing]{}, wrapList(err)
	}
	return pagination.BuildPage(rows, params.Limit, listingCursor), nil
}

func (s *service) ListMine(ctx context.Context, seller auth.Actor, params pagination.Params) (pagination.Page[models.Listing], error) {
	rows, err := s.repo.ListBySeller(ctx, seller.UserID, params)
	if err != nil {
		return pagination.Page[models.Listing]{}, wrapList(err)
	}
	return pagination.BuildPage(rows, params.Limit, listingCursor), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
	}
	return listing, nil
}

func listingCursor(l models.Listing) pagination.Cursor {
	return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
}

func wrapList(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list listings")
}
