package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/inventory"
	"github.com/angelmondragon/tradepost-backend/internal/ledger"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

type escrowFixture struct {
	svc     Service
	client  *db.Client
	conn    *gorm.DB
	order   models.Order
	payment models.Payment
}

func newEscrowFixture(t *testing.T) escrowFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), ledgerSvc, inventory.NewLocker(nil), 7*24*time.Hour, nil)
	require.NoError(t, err)

	listing := dbtest.SeedListing(t, conn, func(l *models.Listing) {
		l.Price = decimal.NewFromInt(600)
		l.Status = enums.ListingStatusSold
	})
	order := dbtest.SeedOrder(t, conn, listing, uuid.New(), func(o *models.Order) {
		o.Status = enums.OrderStatusPaid
	})
	payment := dbtest.SeedPayment(t, conn, order, enums.PaymentStatusCompleted)
	return escrowFixture{svc: svc, client: client, conn: conn, order: order, payment: payment}
}

func (f escrowFixture) createHold(t *testing.T) *models.PaymentHold {
	t.Helper()
	var hold *models.PaymentHold
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		hold, err = f.svc.CreateHold(context.Background(), tx, &f.payment, &f.order)
		return err
	}))
	return hold
}

func ledgerTypes(t *testing.T, conn *gorm.DB, orderID uuid.UUID) []enums.LedgerEventType {
	t.Helper()
	var events []models.LedgerEvent
	require.NoError(t, conn.Where("order_id = ?", orderID).Order("created_at ASC").Find(&events).Error)
	out := make([]enums.LedgerEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestCreateHoldWithholdsSellerAmount(t *testing.T) {
	f := newEscrowFixture(t)
	hold := f.createHold(t)

	require.Equal(t, enums.HoldStatusHeld, hold.Status)
	require.True(t, hold.Amount.Equal(decimal.RequireFromString("570.00")))
	require.WithinDuration(t, time.Now().UTC().Add(7*24*time.Hour), hold.ReleaseAt, time.Minute)
	require.Equal(t, []enums.LedgerEventType{enums.LedgerEventTypeHoldCreated}, ledgerTypes(t, f.conn, f.order.ID))
}

func TestReleaseIsOneShot(t *testing.T) {
	f := newEscrowFixture(t)
	f.createHold(t)
	ctx := context.Background()
	buyer := auth.Actor{UserID: f.order.BuyerID, Role: enums.UserRoleBuyer}

	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		released, err := f.svc.Release(ctx, tx, f.order.ID, buyer)
		if err != nil {
			return err
		}
		require.NotNil(t, released.ReleasedAt)
		return nil
	}))

	err := f.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.svc.Release(ctx, tx, f.order.ID, buyer)
		return err
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	err = f.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.svc.Cancel(ctx, tx, f.order.ID, RefundInput{}, auth.SystemActor())
		return err
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	stored, err := f.svc.Get(ctx, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.HoldStatusReleased, stored.Status)
	require.Equal(t, []enums.LedgerEventType{enums.LedgerEventTypeHoldCreated, enums.LedgerEventTypeHoldReleased}, ledgerTypes(t, f.conn, f.order.ID))
}

func TestCancelRefundsPaymentAndRecordsPartialAmount(t *testing.T) {
	f := newEscrowFixture(t)
	f.createHold(t)
	ctx := context.Background()
	partial := decimal.NewFromInt(200)

	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.svc.Cancel(ctx, tx, f.order.ID, RefundInput{Amount: &partial, Reason: "item damaged"}, auth.SystemActor())
		return err
	}))

	payment := dbtest.Reload[models.Payment](t, f.conn, f.payment.ID)
	require.Equal(t, enums.PaymentStatusRefunded, payment.Status)
	require.NotNil(t, payment.RefundedAt)

	var refund models.LedgerEvent
	require.NoError(t, f.conn.Where("order_id = ? AND type = ?", f.order.ID, enums.LedgerEventTypeRefund).Take(&refund).Error)
	require.True(t, refund.Partial)
	require.True(t, refund.Amount.Equal(partial))
	require.Nil(t, refund.ActorID)
}

func TestCancelRejectsRefundAboveAmountPaid(t *testing.T) {
	f := newEscrowFixture(t)
	f.createHold(t)
	ctx := context.Background()
	tooMuch := decimal.NewFromInt(601)

	err := f.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.svc.Cancel(ctx, tx, f.order.ID, RefundInput{Amount: &tooMuch}, auth.SystemActor())
		return err
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	hold, err := f.svc.Get(ctx, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.HoldStatusHeld, hold.Status)
}

func TestListDueReturnsExpiredHolds(t *testing.T) {
	f := newEscrowFixture(t)
	hold := f.createHold(t)

	due, err := f.svc.ListDue(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = f.svc.ListDue(context.Background(), hold.ReleaseAt.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, hold.ID, due[0].ID)
}

func TestGetMissingHold(t *testing.T) {
	f := newEscrowFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
