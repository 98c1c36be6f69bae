package payments

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/square"
)

type fakeSquare struct {
	created []square.PaymentCreateParams
	valid   bool
}

func (f *fakeSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	f.created = append(f.created, params)
	id := "sq-" + params.ReferenceID
	return &sq.Payment{ID: &id}, nil
}

func (f *fakeSquare) VerifyWebhook(_ []byte, signature string) bool {
	return f.valid && signature != ""
}

func TestHostedSessionSignsRedirect(t *testing.T) {
	p, err := NewHostedProvider(HostedConfig{
		GatewayURL: "https://pay.example.test/checkout",
		MerchantID: "m-1",
		Secret:     "s3cret",
	})
	require.NoError(t, err)

	paymentID := uuid.New()
	session, err := p.CreateSession(context.Background(), SessionRequest{
		PaymentID:   paymentID,
		OrderNumber: "TP-20260101-ABCDEFGH",
		Amount:      decimal.RequireFromString("12.5"),
		Currency:    enums.CurrencyUSD,
	})
	require.NoError(t, err)
	require.Equal(t, paymentID.String(), session.Reference)

	u, err := url.Parse(*session.RedirectURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "12.50", q.Get("amount"))
	require.Equal(t, hostedHMAC("s3cret", "m-1", paymentID.String(), "12.50", "USD"), q.Get("signature"))
}

func TestHostedVerifyAndParse(t *testing.T) {
	p, err := NewHostedProvider(HostedConfig{GatewayURL: "https://pay.example.test", Secret: "s3cret"})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{
		"reference": "ref-1",
		"status":    "success",
		"amount":    "10.00",
		"hash":      SignCallback("s3cret", "ref-1", "success", "10.00"),
	})
	require.NoError(t, err)

	require.True(t, p.VerifySignature(body, ""))
	require.True(t, p.VerifySignature(body, SignCallback("s3cret", "ref-1", "success", "10.00")))
	require.False(t, p.VerifySignature(body, SignCallback("other", "ref-1", "success", "10.00")))
	require.False(t, p.VerifySignature([]byte("not json"), "abc"))

	cb, err := p.ParseCallback(body)
	require.NoError(t, err)
	require.Equal(t, CallbackSuccess, cb.Status)
	require.Equal(t, "ref-1", cb.Reference)
	require.Equal(t, "ref-1:success", cb.EventID)
	require.True(t, cb.Amount.Equal(decimal.NewFromInt(10)))

	_, err = p.ParseCallback([]byte(`{"reference":"ref-1","status":"maybe","amount":"1.00"}`))
	require.Error(t, err)
	_, err = p.ParseCallback([]byte(`{"reference":"ref-1","status":"success","amount":"1.001"}`))
	require.Error(t, err)
}

func TestSquareProviderSessionAndCallback(t *testing.T) {
	api := &fakeSquare{valid: true}
	p, err := NewSquareProvider(api)
	require.NoError(t, err)

	paymentID := uuid.New()
	_, err = p.CreateSession(context.Background(), SessionRequest{PaymentID: paymentID, Amount: decimal.NewFromInt(5)})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	session, err := p.CreateSession(context.Background(), SessionRequest{
		PaymentID: paymentID,
		Amount:    decimal.RequireFromString("19.99"),
		Currency:  enums.CurrencyUSD,
		SourceID:  "cnon:card-nonce-ok",
	})
	require.NoError(t, err)
	require.Equal(t, "sq-"+paymentID.String(), session.Reference)
	require.Nil(t, session.RedirectURL)
	require.Len(t, api.created, 1)
	require.EqualValues(t, 1999, api.created[0].AmountCents)
	require.Equal(t, "payment-"+paymentID.String(), api.created[0].IdempotencyKey)

	body := []byte(`{"event_id":"evt-1","type":"payment.updated","data":{"type":"payment","id":"sq-1","object":{"payment":{"id":"sq-1","status":"COMPLETED","reference_id":"r","amount_money":{"amount":1999,"currency":"USD"}}}}}`)
	require.True(t, p.VerifySignature(body, "sig"))
	cb, err := p.ParseCallback(body)
	require.NoError(t, err)
	require.Equal(t, CallbackSuccess, cb.Status)
	require.Equal(t, "evt-1", cb.EventID)
	require.Equal(t, "sq-1", cb.Reference)
	require.Equal(t, uuid.Nil, cb.PaymentID)
	require.True(t, cb.Amount.Equal(decimal.RequireFromString("19.99")))

	echoed := []byte(`{"event_id":"evt-3","type":"payment.updated","data":{"object":{"payment":{"id":"sq-2","status":"COMPLETED","reference_id":"` + paymentID.String() + `","amount_money":{"amount":500}}}}}`)
	cb, err = p.ParseCallback(echoed)
	require.NoError(t, err)
	require.Equal(t, paymentID, cb.PaymentID)
	require.Equal(t, "sq-2", cb.Reference)

	approved := []byte(`{"event_id":"evt-2","type":"payment.updated","data":{"object":{"payment":{"id":"sq-1","status":"APPROVED","amount_money":{"amount":1999}}}}}`)
	cb, err = p.ParseCallback(approved)
	require.NoError(t, err)
	require.Equal(t, CallbackPending, cb.Status)
}

func TestRegistryLookup(t *testing.T) {
	hosted, err := NewHostedProvider(HostedConfig{GatewayURL: "https://pay.example.test", Secret: "x"})
	require.NoError(t, err)
	r, err := NewRegistry(hosted, nil)
	require.NoError(t, err)

	p, err := r.Get(" Hosted ")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderHosted, p.Name())

	_, err = r.Get("square")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = NewRegistry(hosted, hosted)
	require.Error(t, err)
	_, err = NewRegistry()
	require.Error(t, err)
}

type fakeEventStore struct {
	keys map[string]bool
}

func (f *fakeEventStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeEventStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.keys, k)
	}
	return nil
}

func (f *fakeEventStore) WebhookEventKey(provider, eventID string) string {
	return "webhook:" + provider + ":" + eventID
}

func TestEventGuardMarksOnce(t *testing.T) {
	store := &fakeEventStore{keys: map[string]bool{}}
	guard, err := NewEventGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "square", "evt-1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "square", "evt-1")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = guard.CheckAndMark(ctx, "hosted", "evt-1")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, guard.Delete(ctx, "square", "evt-1"))
	seen, err = guard.CheckAndMark(ctx, "square", "evt-1")
	require.NoError(t, err)
	require.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "square", "")
	require.Error(t, err)
}
