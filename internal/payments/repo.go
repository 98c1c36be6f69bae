package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// Repository persists payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByReference(ctx context.Context, provider enums.PaymentProvider, reference string) (*models.Payment, error)
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	AttachSession(ctx context.Context, id uuid.UUID, session Session) error
	// Settle moves a pending payment to completed or failed.
	Settle(ctx context.Context, payment *models.Payment, to enums.PaymentStatus, reason *string, at time.Time) error
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

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByReference(ctx context.Context, provider enums.PaymentProvider, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_reference_id = ?", provider, reference).
		Take(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Take(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) AttachSession(ctx context.Context, id uuid.UUID, session Session) error {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(map[string]any{
			"provider_reference_id": session.Reference,
			"redirect_url":          session.RedirectURL,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "attach payment session")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment is no longer pending")
	}
	return nil
}

func (r *repository) Settle(ctx context.Context, payment *models.Payment, to enums.PaymentStatus, reason *string, at time.Time) error {
	updates := map[string]any{"status": to}
	switch to {
	case enums.PaymentStatusCompleted:
		updates["completed_at"] = at
	case enums.PaymentStatusFailed:
		updates["failed_at"] = at
		updates["failure_reason"] = reason
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "payments settle to completed or failed only")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "settle payment")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment was settled concurrently")
	}
	payment.Status = to
	if to == enums.PaymentStatusCompleted {
		payment.CompletedAt = &at
	} else {
		payment.FailedAt = &at
		payment.FailureReason = reason
	}
	return nil
}
