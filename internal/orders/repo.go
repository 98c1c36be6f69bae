package orders

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

type repository struct {
	db *gorm.DB
}

// NewRepository binds the order repository to the provided database handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	return r.list(r.db.WithContext(ctx).Where("buyer_id = ?", buyerID), params, filters)
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	return r.list(r.db.WithContext(ctx).Where("seller_id = ?", sellerID), params, filters)
}

func (r *repository) list(base *gorm.DB, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	if filters.Status != nil {
		base = base.Where("status = ?", *filters.Status)
	}
	query, err := pagination.ApplyDesc(base, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Order
	return rows, query.Find(&rows).Error
}

func (r *repository) UpdateStatus(ctx context.Context, order *models.Order, to enums.OrderStatus, extra map[string]any) error {
	updates := map[string]any{
		"status":  to,
		"version": order.Version + 1,
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update order status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently, reload and retry")
	}
	order.Status = to
	order.Version++
	return nil
}

func (r *repository) CancelOffer(ctx context.Context, offerID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status = ?", offerID, enums.OfferStatusAccepted).
		Updates(map[string]any{
			"status":       enums.OfferStatusCancelled,
			"version":      gorm.Expr("version + 1"),
			"responded_at": at,
		}).Error
}

func (r *repository) FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
			"failed_at":      at,
		}).Error
}

func (r *repository) FindCompletedPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusCompleted).
		Take(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListReleasable(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Joins("JOIN payment_holds ON payment_holds.order_id = orders.id").
		Where("orders.status = ? AND payment_holds.status = ? AND payment_holds.release_at <= ?",
			enums.OrderStatusDelivered, enums.HoldStatusHeld, now).
		Order("payment_holds.release_at ASC").
		Limit(limit).
		Pluck("orders.id", &ids).Error
	return ids, err
}
