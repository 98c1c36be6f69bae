package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

type stubOffers struct {
	offers.Service
	createFn  func(ctx context.Context, buyer auth.Actor, input offers.CreateInput) (*models.Offer, error)
	acceptFn  func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*offers.AcceptResult, error)
	rejectFn  func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Offer, error)
	counterFn func(ctx context.Context, seller auth.Actor, id uuid.UUID, amount decimal.Decimal) (*models.Offer, error)
}

func (s stubOffers) Create(ctx context.Context, buyer auth.Actor, input offers.CreateInput) (*models.Offer, error) {
	return s.createFn(ctx, buyer, input)
}

func (s stubOffers) Accept(ctx context.Context, actor auth.Actor, id uuid.UUID) (*offers.AcceptResult, error) {
	return s.acceptFn(ctx, actor, id)
}

func (s stubOffers) Reject(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Offer, error) {
	return s.rejectFn(ctx, actor, id)
}

func (s stubOffers) Counter(ctx context.Context, seller auth.Actor, id uuid.UUID, amount decimal.Decimal) (*models.Offer, error) {
	return s.counterFn(ctx, seller, id, amount)
}

func sampleOffer(status enums.OfferStatus) *models.Offer {
	return &models.Offer{
		ID:        uuid.New(),
		ListingID: uuid.New(),
		BuyerID:   uuid.New(),
		SellerID:  uuid.New(),
		Amount:    decimal.RequireFromString("600.00"),
		Status:    status,
		Round:     1,
		ExpiresAt: time.Now().Add(48 * time.Hour).UTC(),
		CreatedAt: time.Now().UTC(),
	}
}

func TestOfferCreate(t *testing.T) {
	listingID := uuid.New()
	var buyerID uuid.UUID
	svc := stubOffers{createFn: func(ctx context.Context, buyer auth.Actor, input offers.CreateInput) (*models.Offer, error) {
		if buyer.UserID != buyerID {
			t.Fatalf("unexpected buyer %s", buyer.UserID)
		}
		if input.ListingID != listingID || !input.Amount.Equal(decimal.RequireFromString("600")) {
			t.Fatalf("unexpected input %+v", input)
		}
		if input.ShippingAddressID != nil {
			t.Fatalf("expected no address")
		}
		return sampleOffer(enums.OfferStatusPending), nil
	}}

	body := `{"listing_id":"` + listingID.String() + `","amount":"600.00"}`
	req, actor := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), enums.UserRoleBuyer)
	buyerID = actor.UserID
	resp := httptest.NewRecorder()
	OfferCreate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestOfferCreateValidatesBody(t *testing.T) {
	cases := map[string]string{
		"missing amount":  `{"listing_id":"` + uuid.NewString() + `"}`,
		"too many places": `{"listing_id":"` + uuid.NewString() + `","amount":"1.005"}`,
		"zero amount":     `{"listing_id":"` + uuid.NewString() + `","amount":"0"}`,
		"bad listing":     `{"listing_id":"abc","amount":"10"}`,
		"unknown field":   `{"listing_id":"` + uuid.NewString() + `","amount":"10","price":"1"}`,
	}
	for name, body := range cases {
		req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), enums.UserRoleBuyer)
		resp := httptest.NewRecorder()
		OfferCreate(stubOffers{}, nil).ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, resp.Code)
		}
	}
}

func TestOfferAcceptReturnsOfferAndOrder(t *testing.T) {
	offerID := uuid.New()
	svc := stubOffers{acceptFn: func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*offers.AcceptResult, error) {
		offer := sampleOffer(enums.OfferStatusAccepted)
		offer.ID = id
		order := sampleOrder(uuid.New())
		order.OfferID = &offer.ID
		return &offers.AcceptResult{Offer: offer, Order: order}, nil
	}}

	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.UserRoleSeller)
	req = withURLParam(req, "offerId", offerID.String())
	resp := httptest.NewRecorder()
	OfferAccept(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			Offer struct {
				ID     uuid.UUID `json:"id"`
				Status string    `json:"status"`
			} `json:"offer"`
			Order struct {
				OfferID *uuid.UUID `json:"offer_id"`
				Status  string     `json:"status"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Offer.ID != offerID || envelope.Data.Offer.Status != "accepted" {
		t.Fatalf("unexpected offer %+v", envelope.Data.Offer)
	}
	if envelope.Data.Order.OfferID == nil || *envelope.Data.Order.OfferID != offerID || envelope.Data.Order.Status != "pending_payment" {
		t.Fatalf("unexpected order %+v", envelope.Data.Order)
	}
}

func TestOfferAcceptLockConflictIsRetryable(t *testing.T) {
	svc := stubOffers{acceptFn: func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*offers.AcceptResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "listing is being updated")
	}}

	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.UserRoleSeller)
	req = withURLParam(req, "offerId", uuid.NewString())
	resp := httptest.NewRecorder()
	OfferAccept(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on lock conflict")
	}
}

func TestOfferRejectForbidden(t *testing.T) {
	svc := stubOffers{rejectFn: func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Offer, error) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can reject")
	}}

	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.UserRoleBuyer)
	req = withURLParam(req, "offerId", uuid.NewString())
	resp := httptest.NewRecorder()
	OfferReject(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestOfferCounter(t *testing.T) {
	svc := stubOffers{counterFn: func(ctx context.Context, seller auth.Actor, id uuid.UUID, amount decimal.Decimal) (*models.Offer, error) {
		if !amount.Equal(decimal.RequireFromString("650")) {
			t.Fatalf("unexpected amount %s", amount)
		}
		offer := sampleOffer(enums.OfferStatusPending)
		offer.Round = 2
		offer.CounterOfID = &id
		offer.Amount = amount
		return offer, nil
	}}

	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"650"}`)), enums.UserRoleSeller)
	req = withURLParam(req, "offerId", uuid.NewString())
	resp := httptest.NewRecorder()
	OfferCounter(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestNilServiceIsInternal(t *testing.T) {
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.UserRoleSeller)
	req = withURLParam(req, "offerId", uuid.NewString())
	resp := httptest.NewRecorder()
	OfferReject(nil, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
