package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type initiatePaymentRequest struct {
	OrderID  string `json:"order_id" validate:"required,uuid"`
	Provider string `json:"provider"`
	SourceID string `json:"source_id" validate:"max=255"`
}

// PaymentInitiate opens (or resumes) a gateway payment for an order awaiting
// payment. An empty provider falls back to defaultProvider.
func PaymentInitiate(svc payments.Service, defaultProvider string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments service")
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id"))
			return
		}
		provider := validators.SanitizeString(req.Provider, 32)
		if provider == "" {
			provider = defaultProvider
		}

		payment, err := svc.Initiate(r.Context(), actor, payments.InitiateInput{
			OrderID:  orderID,
			Provider: provider,
			SourceID: req.SourceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentView(payment))
	}
}

func PaymentGet(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments service")
			return
		}
		actor, paymentID, ok := actorAndID(w, r, logg, "paymentId")
		if !ok {
			return
		}
		payment, err := svc.Get(r.Context(), actor, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentView(payment))
	}
}

func OrderPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments service")
			return
		}
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		rows, err := svc.ListForOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapSlice(rows, func(p *models.Payment) paymentView { return newPaymentView(p) }))
	}
}
