package payments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/addresses"
	"github.com/angelmondragon/tradepost-backend/internal/commission"
	"github.com/angelmondragon/tradepost-backend/internal/escrow"
	"github.com/angelmondragon/tradepost-backend/internal/inventory"
	"github.com/angelmondragon/tradepost-backend/internal/ledger"
	"github.com/angelmondragon/tradepost-backend/internal/listings"
	"github.com/angelmondragon/tradepost-backend/internal/notifier"
	"github.com/angelmondragon/tradepost-backend/internal/orders"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

const testSecret = "hosted-secret"

type paymentHarness struct {
	svc      Service
	orders   orders.Service
	client   *db.Client
	conn     *gorm.DB
	recorder *notifier.Recorder
}

func newPaymentHarness(t *testing.T) paymentHarness {
	t.Helper()
	client, conn := dbtest.Client(t)
	dbtest.SeedDefaultRule(t, conn)

	locker := inventory.NewLocker(nil)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	escrowSvc, err := escrow.NewService(escrow.NewRepository(conn), ledgerSvc, locker, 7*24*time.Hour, nil)
	require.NoError(t, err)
	commissionSvc, err := commission.NewService(commission.NewRepository(conn), decimal.NewFromInt(5), nil, nil)
	require.NoError(t, err)
	addressSvc, err := addresses.NewService(addresses.NewRepository(conn))
	require.NoError(t, err)

	recorder := &notifier.Recorder{}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Tx:         client,
		Repo:       orders.NewRepository(conn),
		Listings:   listings.NewRepository(conn),
		Locker:     locker,
		Guard:      inventory.NewMemoryGuard(nil),
		Commission: commissionSvc,
		Addresses:  addressSvc,
		Escrow:     escrowSvc,
		Notifier:   recorder,
	})
	require.NoError(t, err)

	hosted, err := NewHostedProvider(HostedConfig{
		GatewayURL: "https://pay.example.test/checkout",
		MerchantID: "merchant-1",
		Secret:     testSecret,
		ReturnURL:  "https://tradepost.example.test/orders",
	})
	require.NoError(t, err)
	square, err := NewSquareProvider(&fakeSquare{valid: true})
	require.NoError(t, err)
	registry, err := NewRegistry(hosted, square)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Tx:        client,
		Repo:      NewRepository(conn),
		Providers: registry,
		Locker:    locker,
		Orders:    orderSvc,
		Escrow:    escrowSvc,
		Notifier:  recorder,
	})
	require.NoError(t, err)
	return paymentHarness{svc: svc, orders: orderSvc, client: client, conn: conn, recorder: recorder}
}

func (h paymentHarness) placeOrder(t *testing.T, price int64) (*models.Order, auth.Actor) {
	t.Helper()
	buyer := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer}
	listing := dbtest.SeedListing(t, h.conn, func(l *models.Listing) {
		l.Price = decimal.NewFromInt(price)
	})
	addr := dbtest.SeedAddress(t, h.conn, buyer.UserID)
	order, err := h.orders.CreateDirectOrder(context.Background(), buyer, orders.DirectOrderInput{
		ListingID:         listing.ID,
		ShippingAddressID: addr.ID,
	})
	require.NoError(t, err)
	return order, buyer
}

func hostedPayload(t *testing.T, reference, status, amount, txID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"reference":      reference,
		"status":         status,
		"amount":         amount,
		"transaction_id": txID,
		"hash":           SignCallback(testSecret, reference, status, amount),
	})
	require.NoError(t, err)
	return body
}

func squarePayload(t *testing.T, eventID, squareID, referenceID, status string, cents int64) []byte {
	t.Helper()
	payment := map[string]any{
		"id":           squareID,
		"status":       status,
		"reference_id": referenceID,
		"amount_money": map[string]any{"amount": cents, "currency": "USD"},
	}
	body, err := json.Marshal(map[string]any{
		"event_id": eventID,
		"type":     "payment.updated",
		"data": map[string]any{
			"type":   "payment",
			"id":     squareID,
			"object": map[string]any{"payment": payment},
		},
	})
	require.NoError(t, err)
	return body
}

func countRows[T any](t *testing.T, conn *gorm.DB, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(new(T)).Where(where, args...).Count(&n).Error)
	return n
}

func TestInitiateCreatesPendingPaymentWithRedirect(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)

	payment, err := h.svc.Initiate(context.Background(), buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPending, payment.Status)
	require.True(t, payment.Amount.Equal(order.TotalAmount))
	require.NotNil(t, payment.ProviderReferenceID)
	require.Equal(t, payment.ID.String(), *payment.ProviderReferenceID)
	require.NotNil(t, payment.RedirectURL)
	require.Contains(t, *payment.RedirectURL, "reference="+payment.ID.String())
	require.Contains(t, *payment.RedirectURL, "amount=600.00")

	again, err := h.svc.Initiate(context.Background(), buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)
	require.Equal(t, payment.ID, again.ID)

	_, err = h.svc.Initiate(context.Background(), buyer, InitiateInput{OrderID: order.ID, Provider: "square", SourceID: "cnon:card"})
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	require.EqualValues(t, 1, countRows[models.Payment](t, h.conn, "order_id = ?", order.ID))
}

func TestInitiateReopensUnattachedSession(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	payment, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]any{"provider_reference_id": nil, "redirect_url": nil}).Error)

	again, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)
	require.Equal(t, payment.ID, again.ID)
	require.NotNil(t, again.RedirectURL)
	require.NotNil(t, again.ProviderReferenceID)

	stored := dbtest.Reload[models.Payment](t, h.conn, payment.ID)
	require.NotNil(t, stored.RedirectURL)
	require.Equal(t, payment.ID.String(), *stored.ProviderReferenceID)
	require.EqualValues(t, 1, countRows[models.Payment](t, h.conn, "order_id = ?", order.ID))
}

func TestSquareCallbackResolvesByOurPaymentID(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	payment, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "square", SourceID: "cnon:card"})
	require.NoError(t, err)
	require.NotNil(t, payment.ProviderReferenceID)
	squareID := *payment.ProviderReferenceID

	// the charge went through but its Square id was never stored
	require.NoError(t, h.conn.Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Update("provider_reference_id", nil).Error)

	body := squarePayload(t, "evt-1", squareID, payment.ID.String(), "COMPLETED", 60000)
	result, err := h.svc.HandleCallback(ctx, "square", body, "sig")
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, result.Outcome)

	stored := dbtest.Reload[models.Payment](t, h.conn, payment.ID)
	require.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.ProviderReferenceID)
	require.Equal(t, squareID, *stored.ProviderReferenceID)
	require.Equal(t, enums.OrderStatusPaid, dbtest.Reload[models.Order](t, h.conn, order.ID).Status)

	// a hosted payment id is not a square payment
	other, otherBuyer := h.placeOrder(t, 300)
	hosted, err := h.svc.Initiate(ctx, otherBuyer, InitiateInput{OrderID: other.ID, Provider: "hosted"})
	require.NoError(t, err)
	_, err = h.svc.HandleCallback(ctx, "square", squarePayload(t, "evt-2", "sq-x", hosted.ID.String(), "COMPLETED", 30000), "sig")
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestInitiateGuards(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	stranger := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer}
	_, err := h.svc.Initiate(ctx, stranger, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "paypal"})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: uuid.New(), Provider: "hosted"})
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	// square without a card token fails at the gateway step and the attempt is closed
	_, err = h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "square"})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	require.EqualValues(t, 1, countRows[models.Payment](t, h.conn, "order_id = ? AND status = ?", order.ID, enums.PaymentStatusFailed))

	_, err = h.orders.Cancel(ctx, buyer, order.ID, "changed my mind")
	require.NoError(t, err)
	_, err = h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestDuplicateCallbackConfirmsOnce(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	payment, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)
	payload := hostedPayload(t, payment.ID.String(), "success", "600.00", "gw-tx-1")

	first, err := h.svc.HandleCallback(ctx, "hosted", payload, "")
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, first.Outcome)
	require.Equal(t, enums.OrderStatusPaid, first.Order.Status)
	require.NotNil(t, first.Hold)
	require.True(t, first.Hold.Amount.Equal(decimal.RequireFromString("570.00")))

	second, err := h.svc.HandleCallback(ctx, "hosted", payload, "")
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, second.Outcome)

	require.EqualValues(t, 1, countRows[models.PaymentHold](t, h.conn, "order_id = ?", order.ID))
	stored := dbtest.Reload[models.Payment](t, h.conn, payment.ID)
	require.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	listing := dbtest.Reload[models.Listing](t, h.conn, order.ListingID)
	require.Equal(t, enums.ListingStatusSold, listing.Status)

	paid := 0
	for _, name := range h.recorder.Names() {
		if name == enums.EventOrderPaid {
			paid++
		}
	}
	require.Equal(t, 1, paid)
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	payment, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)
	payload := hostedPayload(t, payment.ID.String(), "success", "600.00", "gw-tx-1")

	_, err = h.svc.HandleCallback(ctx, "hosted", payload, "deadbeef")
	require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	tampered := hostedPayload(t, payment.ID.String(), "success", "600.00", "gw-tx-1")
	var body map[string]string
	require.NoError(t, json.Unmarshal(tampered, &body))
	body["amount"] = "1.00"
	tampered, err = json.Marshal(body)
	require.NoError(t, err)
	_, err = h.svc.HandleCallback(ctx, "hosted", tampered, "")
	require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	stored := dbtest.Reload[models.Payment](t, h.conn, payment.ID)
	require.Equal(t, enums.PaymentStatusPending, stored.Status)
}

func TestCallbackAmountMismatchFailsPayment(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	payment, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)

	result, err := h.svc.HandleCallback(ctx, "hosted", hostedPayload(t, payment.ID.String(), "success", "599.99", "gw-tx-2"), "")
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, result.Outcome)

	stored := dbtest.Reload[models.Payment](t, h.conn, payment.ID)
	require.Equal(t, enums.PaymentStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	require.Equal(t, "amount_mismatch", *stored.FailureReason)
	require.Equal(t, enums.OrderStatusPendingPayment, dbtest.Reload[models.Order](t, h.conn, order.ID).Status)

	// a fresh attempt is allowed once the failed one is closed
	retry, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)
	require.NotEqual(t, payment.ID, retry.ID)
}

func TestFailedCallbackKeepsOrderPayable(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	payment, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]string{
		"reference": payment.ID.String(),
		"status":    "failed",
		"amount":    "600.00",
		"reason":    "card declined",
		"hash":      SignCallback(testSecret, payment.ID.String(), "failed", "600.00"),
	})
	require.NoError(t, err)

	result, err := h.svc.HandleCallback(ctx, "hosted", payload, "")
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.Equal(t, "card declined", *dbtest.Reload[models.Payment](t, h.conn, payment.ID).FailureReason)
	require.Equal(t, enums.OrderStatusPendingPayment, dbtest.Reload[models.Order](t, h.conn, order.ID).Status)
}

func TestCallbackForUnknownReference(t *testing.T) {
	h := newPaymentHarness(t)
	_, err := h.svc.HandleCallback(context.Background(), "hosted", hostedPayload(t, uuid.NewString(), "success", "1.00", "x"), "")
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestCallbackAfterCancelIsDuplicate(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	payment, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)
	_, err = h.orders.Cancel(ctx, buyer, order.ID, "too slow")
	require.NoError(t, err)

	result, err := h.svc.HandleCallback(ctx, "hosted", hostedPayload(t, payment.ID.String(), "success", "600.00", "late"), "")
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, result.Outcome)
	require.Equal(t, enums.OrderStatusCancelled, dbtest.Reload[models.Order](t, h.conn, order.ID).Status)
	require.EqualValues(t, 0, countRows[models.PaymentHold](t, h.conn, "order_id = ?", order.ID))
}

func TestGetAndListRespectOwnership(t *testing.T) {
	h := newPaymentHarness(t)
	order, buyer := h.placeOrder(t, 600)
	ctx := context.Background()

	payment, err := h.svc.Initiate(ctx, buyer, InitiateInput{OrderID: order.ID, Provider: "hosted"})
	require.NoError(t, err)

	got, err := h.svc.Get(ctx, buyer, payment.ID)
	require.NoError(t, err)
	require.Equal(t, payment.ID, got.ID)

	_, err = h.svc.Get(ctx, auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer}, payment.ID)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	rows, err := h.svc.ListForOrder(ctx, auth.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = h.svc.ListForOrder(ctx, auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer}, order.ID)
	require.NoError(t, err)
	require.Empty(t, rows)
}
