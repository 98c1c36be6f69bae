package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// Repository persists payment holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, hold *models.PaymentHold) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentHold, error)
	// Transition moves a held row to a terminal status. Rows that already left
	// held report Conflict.
	Transition(ctx context.Context, id uuid.UUID, to enums.HoldStatus, at time.Time) error
	MarkPaymentRefunded(ctx context.Context, paymentID uuid.UUID, at time.Time) error
	// ListDue returns held rows whose release time has passed, oldest first.
	ListDue(ctx context.Context, before time.Time, limit int) ([]models.PaymentHold, error)
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

func (r *repository) Create(ctx context.Context, hold *models.PaymentHold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentHold, error) {
	var hold models.PaymentHold
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&hold).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, to enums.HoldStatus, at time.Time) error {
	updates := map[string]any{"status": to}
	switch to {
	case enums.HoldStatusReleased:
		updates["released_at"] = at
	case enums.HoldStatusCancelled:
		updates["cancelled_at"] = at
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "holds only move to released or cancelled")
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentHold{}).
		Where("id = ? AND status = ?", id, enums.HoldStatusHeld).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update payment hold")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment hold changed concurrently")
	}
	return nil
}

func (r *repository) MarkPaymentRefunded(ctx context.Context, paymentID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusCompleted).
		Updates(map[string]any{
			"status":      enums.PaymentStatusRefunded,
			"refunded_at": at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "mark payment refunded")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed payments can be refunded")
	}
	return nil
}

func (r *repository) ListDue(ctx context.Context, before time.Time, limit int) ([]models.PaymentHold, error) {
	if limit <= 0 {
		limit = 100
	}
	var holds []models.PaymentHold
	err := r.db.WithContext(ctx).
		Where("status = ? AND release_at <= ?", enums.HoldStatusHeld, before).
		Order("release_at ASC").
		Limit(limit).
		Find(&holds).Error
	return holds, err
}
