package controllers

import (
	"net/http"

	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/internal/addresses"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type createAddressRequest struct {
	Label      *string `json:"label" validate:"omitempty,max=64"`
	Recipient  string  `json:"recipient" validate:"required,max=128"`
	Line1      string  `json:"line1" validate:"required,max=256"`
	Line2      *string `json:"line2" validate:"omitempty,max=256"`
	City       string  `json:"city" validate:"required,max=128"`
	State      string  `json:"state" validate:"required,max=64"`
	PostalCode string  `json:"postal_code" validate:"required,max=16"`
	Country    string  `json:"country" validate:"required,len=2"`
	Phone      *string `json:"phone" validate:"omitempty,max=32"`
}

func AddressCreate(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "addresses service")
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createAddressRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		address, err := svc.Create(r.Context(), actor, addresses.CreateInput{
			Label:      req.Label,
			Recipient:  validators.SanitizeString(req.Recipient, 128),
			Line1:      validators.SanitizeString(req.Line1, 256),
			Line2:      req.Line2,
			City:       validators.SanitizeString(req.City, 128),
			State:      validators.SanitizeString(req.State, 64),
			PostalCode: validators.SanitizeString(req.PostalCode, 16),
			Country:    validators.SanitizeString(req.Country, 2),
			Phone:      req.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAddressView(address))
	}
}

func AddressList(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "addresses service")
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapSlice(rows, func(a *models.ShippingAddress) addressView { return newAddressView(a) }))
	}
}
