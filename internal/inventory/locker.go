package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// Mode selects how a row lock behaves when another transaction holds it.
type Mode int

const (
	// ModeBlocking waits for the current holder (FOR UPDATE).
	ModeBlocking Mode = iota
	// ModeNonBlocking skips a held row and reports a Conflict (FOR UPDATE SKIP LOCKED).
	ModeNonBlocking
)

const (
	ResourceListing = "listing"
	ResourceOffer   = "offer"
	ResourceOrder   = "order"
	ResourcePayment = "payment"
	ResourceHold    = "payment_hold"
)

type conflictRecorder interface {
	IncLockConflict(resource string)
}

// Locker takes row locks inside a caller-owned transaction.
type Locker struct {
	metrics conflictRecorder
}

// NewLocker builds a Locker. metrics may be nil.
func NewLocker(metrics conflictRecorder) *Locker {
	return &Locker{metrics: metrics}
}

func (l *Locker) LockListing(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode Mode) (*models.Listing, error) {
	return lockRow[models.Listing](ctx, l, tx, ResourceListing, mode, "id = ?", id)
}

func (l *Locker) LockOffer(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode Mode) (*models.Offer, error) {
	return lockRow[models.Offer](ctx, l, tx, ResourceOffer, mode, "id = ?", id)
}

func (l *Locker) LockOrder(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode Mode) (*models.Order, error) {
	return lockRow[models.Order](ctx, l, tx, ResourceOrder, mode, "id = ?", id)
}

func (l *Locker) LockPayment(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode Mode) (*models.Payment, error) {
	return lockRow[models.Payment](ctx, l, tx, ResourcePayment, mode, "id = ?", id)
}

// LockHoldByOrder locks the escrow hold attached to an order.
func (l *Locker) LockHoldByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.PaymentHold, error) {
	return lockRow[models.PaymentHold](ctx, l, tx, ResourceHold, ModeBlocking, "order_id = ?", orderID)
}

func lockRow[T any](ctx context.Context, l *Locker, tx *gorm.DB, resource string, mode Mode, query string, args ...any) (*T, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "row lock requires a transaction")
	}
	locking := clause.Locking{Strength: clause.LockingStrengthUpdate}
	if mode == ModeNonBlocking {
		locking.Options = clause.LockingOptionsSkipLocked
	}

	var row T
	err := tx.WithContext(ctx).
		Clauses(locking).
		Where(query, args...).
		Take(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("lock %s", resource))
	}
	if mode == ModeBlocking {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s not found", resource))
	}

	// SKIP LOCKED hides held rows; an unlocked read tells held from missing.
	var count int64
	if err := tx.WithContext(ctx).Model(new(T)).Where(query, args...).Count(&count).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("look up %s", resource))
	}
	if count == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s not found", resource))
	}
	l.conflict(resource)
	return nil, ConflictError(resource)
}

func (l *Locker) conflict(resource string) {
	if l != nil && l.metrics != nil {
		l.metrics.IncLockConflict(resource)
	}
}

// ConflictError is the retryable error returned when another request holds resource.
func ConflictError(resource string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("%s is locked by another request, retry", resource))
}
