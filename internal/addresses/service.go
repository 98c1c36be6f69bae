package addresses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/types"
)

// Service manages buyer shipping addresses.
type Service interface {
	Create(ctx context.Context, owner auth.Actor, input CreateInput) (*models.ShippingAddress, error)
	List(ctx context.Context, owner auth.Actor) ([]models.ShippingAddress, error)
	// GetOwned resolves an address inside tx and reports NotFound when it
	// belongs to somebody else.
	GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*models.ShippingAddress, error)
}

type CreateInput struct {
	Label      *string
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      *string
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, owner auth.Actor, input CreateInput) (*models.ShippingAddress, error) {
	if owner.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	country := strings.ToUpper(strings.TrimSpace(input.Country))
	if country == "" {
		country = "US"
	}
	snapshot := types.Address{
		Recipient:  strings.TrimSpace(input.Recipient),
		Line1:      strings.TrimSpace(input.Line1),
		Line2:      input.Line2,
		City:       strings.TrimSpace(input.City),
		State:      strings.TrimSpace(input.State),
		PostalCode: strings.TrimSpace(input.PostalCode),
		Country:    country,
		Phone:      input.Phone,
	}
	if err := snapshot.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	addr := &models.ShippingAddress{
		UserID:     owner.UserID,
		Label:      input.Label,
		Recipient:  snapshot.Recipient,
		Line1:      snapshot.Line1,
		Line2:      snapshot.Line2,
		City:       snapshot.City,
		State:      snapshot.State,
		PostalCode: snapshot.PostalCode,
		Country:    snapshot.Country,
		Phone:      snapshot.Phone,
	}
	if err := s.repo.Create(ctx, addr); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create address")
	}
	return addr, nil
}

func (s *service) List(ctx context.Context, owner auth.Actor) ([]models.ShippingAddress, error) {
	rows, err := s.repo.ListByUser(ctx, owner.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list addresses")
	}
	return rows, nil
}

func (s *service) GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*models.ShippingAddress, error) {
	addr, err := s.repo.WithTx(tx).FindOwned(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipping address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipping address")
	}
	return addr, nil
}
