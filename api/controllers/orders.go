package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/internal/orders"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

type directOrderRequest struct {
	ListingID         string `json:"listing_id" validate:"required,uuid"`
	ShippingAddressID string `json:"shipping_address_id" validate:"required,uuid"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type shipRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=64"`
	Carrier        string `json:"carrier" validate:"required,max=64"`
}

// OrderCreate buys a listing outright at its asking price.
func OrderCreate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req directOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuid.Parse(req.ListingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing_id"))
			return
		}
		addressID, err := uuid.Parse(req.ShippingAddressID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping_address_id"))
			return
		}
		order, err := svc.CreateDirectOrder(r.Context(), actor, orders.DirectOrderInput{
			ListingID:         listingID,
			ShippingAddressID: addressID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderView(order))
	}
}

func OrderGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "orders service")
	}
	return orderAction(logg, svc.Get)
}

// OrderList returns the caller's orders. The view query parameter picks the
// buyer (default) or seller side.
func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := parseOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var list func(context.Context, auth.Actor, pagination.Params, orders.ListFilters) (pagination.Page[models.Order], error)
		switch view := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("view"))); view {
		case "", "buyer":
			list = svc.ListForBuyer
		case "seller":
			list = svc.ListForSeller
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "view must be buyer or seller"))
			return
		}

		page, err := list(r.Context(), actor, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPageView(page, func(o *models.Order) orderView { return newOrderView(o) }))
	}
}

func OrderCancel(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		req, ok := decodeReason(w, r, logg)
		if !ok {
			return
		}
		order, err := svc.Cancel(r.Context(), actor, orderID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

func OrderPrepare(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "orders service")
	}
	return orderAction(logg, svc.MarkPreparing)
}

func OrderShip(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		var req shipRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.MarkShipped(r.Context(), actor, orderID, orders.ShipmentInput{
			TrackingNumber: validators.SanitizeString(req.TrackingNumber, 64),
			Carrier:        validators.SanitizeString(req.Carrier, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

func OrderConfirmReceipt(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "orders service")
	}
	return orderAction(logg, svc.ConfirmReceipt)
}

func OrderRequestRefund(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		req, ok := decodeReason(w, r, logg)
		if !ok {
			return
		}
		order, err := svc.RequestRefund(r.Context(), actor, orderID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

func orderAction(logg *logger.Logger, fn func(context.Context, auth.Actor, uuid.UUID) (*models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		order, err := fn(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

// decodeReason accepts an empty body as no reason.
func decodeReason(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (reasonRequest, bool) {
	var req reasonRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return req, false
	}
	req.Reason = validators.SanitizeString(req.Reason, 500)
	return req, true
}

func parseOrderFilters(r *http.Request) (orders.ListFilters, error) {
	var filters orders.ListFilters
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return filters, nil
	}
	status, err := enums.ParseOrderStatus(raw)
	if err != nil {
		return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
	}
	filters.Status = &status
	return filters, nil
}
