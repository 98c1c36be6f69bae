package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/internal/escrow"
	"github.com/angelmondragon/tradepost-backend/internal/ledger"
	"github.com/angelmondragon/tradepost-backend/internal/orders"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

type adminStatusRequest struct {
	Status          string `json:"status" validate:"required"`
	ExpectedVersion int    `json:"expected_version" validate:"min=1"`
}

type adminRefundRequest struct {
	Amount *string `json:"amount" validate:"omitempty,money"`
	Reason string  `json:"reason" validate:"required,max=500"`
}

// AdminOrderStatus forces a status transition guarded by the order version
// the operator last saw.
func AdminOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		var req adminStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		order, err := svc.AdminSetStatus(r.Context(), actor, orderID, status, req.ExpectedVersion)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

func AdminOrderDelivered(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "orders service")
	}
	return orderAction(logg, svc.MarkDelivered)
}

// AdminOrderRefund resolves a refund. Omitting amount refunds in full.
func AdminOrderRefund(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		var req adminRefundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := orders.RefundInput{Reason: validators.SanitizeString(req.Reason, 500)}
		if req.Amount != nil {
			amount, err := parseAmount(*req.Amount, "amount")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Amount = &amount
		}
		order, err := svc.ProcessRefund(r.Context(), actor, orderID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

// AdminEscrowDue lists active holds whose release time has passed.
func AdminEscrowDue(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "escrow service")
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		holds, err := svc.ListDue(r.Context(), time.Now().UTC(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapSlice(holds, func(h *models.PaymentHold) holdView { return newHoldView(h) }))
	}
}

func AdminOrderHold(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "escrow service")
			return
		}
		_, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		hold, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newHoldView(hold))
	}
}

func AdminOrderLedger(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "ledger service")
			return
		}
		_, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		events, err := svc.ListForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderLedgerView{
			Events:  mapSlice(events, func(e *models.LedgerEvent) ledgerView { return newLedgerView(e) }),
			Summary: ledger.Summarize(events),
		})
	}
}
