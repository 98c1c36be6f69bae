package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/api/middleware"
	"github.com/angelmondragon/tradepost-backend/internal/orders"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

type stubOrders struct {
	orders.Service
	getFn      func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Order, error)
	buyerFn    func(ctx context.Context, actor auth.Actor, params pagination.Params, filters orders.ListFilters) (pagination.Page[models.Order], error)
	sellerFn   func(ctx context.Context, actor auth.Actor, params pagination.Params, filters orders.ListFilters) (pagination.Page[models.Order], error)
	cancelFn   func(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*models.Order, error)
	adminSetFn func(ctx context.Context, actor auth.Actor, id uuid.UUID, to enums.OrderStatus, version int) (*models.Order, error)
	refundFn   func(ctx context.Context, actor auth.Actor, id uuid.UUID, input orders.RefundInput) (*models.Order, error)
}

func (s stubOrders) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Order, error) {
	return s.getFn(ctx, actor, id)
}

func (s stubOrders) ListForBuyer(ctx context.Context, actor auth.Actor, params pagination.Params, filters orders.ListFilters) (pagination.Page[models.Order], error) {
	return s.buyerFn(ctx, actor, params, filters)
}

func (s stubOrders) ListForSeller(ctx context.Context, actor auth.Actor, params pagination.Params, filters orders.ListFilters) (pagination.Page[models.Order], error) {
	return s.sellerFn(ctx, actor, params, filters)
}

func (s stubOrders) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*models.Order, error) {
	return s.cancelFn(ctx, actor, id, reason)
}

func (s stubOrders) AdminSetStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, to enums.OrderStatus, version int) (*models.Order, error) {
	return s.adminSetFn(ctx, actor, id, to, version)
}

func (s stubOrders) ProcessRefund(ctx context.Context, actor auth.Actor, id uuid.UUID, input orders.RefundInput) (*models.Order, error) {
	return s.refundFn(ctx, actor, id, input)
}

func sampleOrder(id uuid.UUID) *models.Order {
	return &models.Order{
		ID:                 id,
		OrderNumber:        "TP-20260101-ABCDEF",
		ListingID:          uuid.New(),
		BuyerID:            uuid.New(),
		SellerID:           uuid.New(),
		Currency:           enums.CurrencyUSD,
		TotalAmount:        decimal.RequireFromString("600.00"),
		CommissionAmount:   decimal.RequireFromString("30.00"),
		CommissionRuleName: "default",
		CommissionRate:     decimal.RequireFromString("5"),
		Status:             enums.OrderStatusPendingPayment,
		Version:            1,
		CreatedAt:          time.Now().UTC(),
	}
}

func withActor(req *http.Request, role enums.UserRole) (*http.Request, auth.Actor) {
	actor := auth.Actor{UserID: uuid.New(), Role: role}
	return req.WithContext(middleware.WithActor(req.Context(), actor)), actor
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestOrderGetRendersSellerAmount(t *testing.T) {
	orderID := uuid.New()
	svc := stubOrders{getFn: func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Order, error) {
		if id != orderID {
			t.Fatalf("unexpected id %s", id)
		}
		return sampleOrder(id), nil
	}}

	req, _ := withActor(httptest.NewRequest(http.MethodGet, "/", nil), enums.UserRoleBuyer)
	req = withURLParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	OrderGet(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			ID           uuid.UUID `json:"id"`
			SellerAmount string    `json:"seller_amount"`
			Commission   struct {
				Amount string `json:"amount"`
			} `json:"commission"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != orderID || envelope.Data.SellerAmount != "570" || envelope.Data.Commission.Amount != "30" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestOrderGetRequiresActor(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	OrderGet(stubOrders{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderGetRejectsBadID(t *testing.T) {
	req, _ := withActor(httptest.NewRequest(http.MethodGet, "/", nil), enums.UserRoleBuyer)
	req = withURLParam(req, "orderId", "nope")
	resp := httptest.NewRecorder()
	OrderGet(stubOrders{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderListPicksSideAndFilter(t *testing.T) {
	var sellerCalled bool
	svc := stubOrders{
		sellerFn: func(ctx context.Context, actor auth.Actor, params pagination.Params, filters orders.ListFilters) (pagination.Page[models.Order], error) {
			sellerCalled = true
			if params.Limit != 5 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			if filters.Status == nil || *filters.Status != enums.OrderStatusShipped {
				t.Fatalf("expected shipped filter, got %v", filters.Status)
			}
			return pagination.Page[models.Order]{Items: []models.Order{*sampleOrder(uuid.New())}, NextCursor: "next"}, nil
		},
	}

	req, _ := withActor(httptest.NewRequest(http.MethodGet, "/?view=seller&status=shipped&limit=5", nil), enums.UserRoleSeller)
	resp := httptest.NewRecorder()
	OrderList(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !sellerCalled {
		t.Fatal("expected seller listing")
	}
	var envelope struct {
		Data struct {
			Items      []json.RawMessage `json:"items"`
			NextCursor string            `json:"next_cursor"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.NextCursor != "next" {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
}

func TestOrderListRejectsUnknownStatus(t *testing.T) {
	req, _ := withActor(httptest.NewRequest(http.MethodGet, "/?status=lost", nil), enums.UserRoleBuyer)
	resp := httptest.NewRecorder()
	OrderList(stubOrders{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderCancelAcceptsEmptyBody(t *testing.T) {
	orderID := uuid.New()
	svc := stubOrders{cancelFn: func(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*models.Order, error) {
		if reason != "" {
			t.Fatalf("expected empty reason, got %q", reason)
		}
		o := sampleOrder(id)
		o.Status = enums.OrderStatusCancelled
		return o, nil
	}}

	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.UserRoleBuyer)
	req = withURLParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	OrderCancel(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestOrderCancelSurfacesStateConflict(t *testing.T) {
	svc := stubOrders{cancelFn: func(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already shipped")
	}}

	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"changed my mind"}`)), enums.UserRoleBuyer)
	req = withURLParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	OrderCancel(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestAdminOrderStatusPassesExpectedVersion(t *testing.T) {
	svc := stubOrders{adminSetFn: func(ctx context.Context, actor auth.Actor, id uuid.UUID, to enums.OrderStatus, version int) (*models.Order, error) {
		if to != enums.OrderStatusDelivered || version != 4 {
			t.Fatalf("unexpected args %s %d", to, version)
		}
		if actor.Role != enums.UserRoleAdmin {
			t.Fatalf("expected admin actor, got %s", actor.Role)
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order was modified").WithDetails(map[string]any{"currentVersion": 5})
	}}

	body := `{"status":"delivered","expected_version":4}`
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), enums.UserRoleAdmin)
	req = withURLParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminOrderStatus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Details["currentVersion"] != float64(5) {
		t.Fatalf("expected current version in details, got %v", envelope.Error.Details)
	}
}

func TestAdminOrderRefundParsesPartialAmount(t *testing.T) {
	svc := stubOrders{refundFn: func(ctx context.Context, actor auth.Actor, id uuid.UUID, input orders.RefundInput) (*models.Order, error) {
		if input.Amount == nil || !input.Amount.Equal(decimal.RequireFromString("100.50")) {
			t.Fatalf("unexpected amount %v", input.Amount)
		}
		if input.Reason != "damaged" {
			t.Fatalf("unexpected reason %q", input.Reason)
		}
		return sampleOrder(id), nil
	}}

	body := `{"amount":"100.50","reason":"damaged"}`
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), enums.UserRoleAdmin)
	req = withURLParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminOrderRefund(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminOrderRefundRejectsNegativeAmount(t *testing.T) {
	body := `{"amount":"-5","reason":"damaged"}`
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), enums.UserRoleAdmin)
	req = withURLParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminOrderRefund(stubOrders{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
