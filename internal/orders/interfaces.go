package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, error)
	// UpdateStatus compares the in-memory version, writes status plus extra
	// columns, and bumps the version on success.
	UpdateStatus(ctx context.Context, order *models.Order, to enums.OrderStatus, extra map[string]any) error
	CancelOffer(ctx context.Context, offerID uuid.UUID, at time.Time) error
	FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string, at time.Time) error
	FindCompletedPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	// ListReleasable returns delivered orders whose escrow hold is due.
	ListReleasable(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
