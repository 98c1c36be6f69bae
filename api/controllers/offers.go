package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type createOfferRequest struct {
	ListingID         string  `json:"listing_id" validate:"required,uuid"`
	Amount            string  `json:"amount" validate:"required,money"`
	ShippingAddressID *string `json:"shipping_address_id" validate:"omitempty,uuid"`
	Message           *string `json:"message" validate:"omitempty,max=1000"`
}

type counterOfferRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

func OfferCreate(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers service")
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createOfferRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuid.Parse(req.ListingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing_id"))
			return
		}
		amount, err := parseAmount(req.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		addressID, err := parseOptionalUUID(req.ShippingAddressID, "shipping_address_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.Create(r.Context(), actor, offers.CreateInput{
			ListingID:         listingID,
			Amount:            amount,
			ShippingAddressID: addressID,
			Message:           req.Message,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOfferView(offer))
	}
}

// OfferAccept converts the offer into an order and returns both.
func OfferAccept(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers service")
			return
		}
		actor, offerID, ok := actorAndID(w, r, logg, "offerId")
		if !ok {
			return
		}
		result, err := svc.Accept(r.Context(), actor, offerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, acceptView{
			Offer: newOfferView(result.Offer),
			Order: newOrderView(result.Order),
		})
	}
}

func OfferReject(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "offers service")
	}
	return offerAction(logg, svc.Reject)
}

func OfferCancel(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "offers service")
	}
	return offerAction(logg, svc.Cancel)
}

func OfferGet(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "offers service")
	}
	return offerAction(logg, svc.Get)
}

// OfferCounter answers an offer with a new, higher round.
func OfferCounter(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers service")
			return
		}
		actor, offerID, ok := actorAndID(w, r, logg, "offerId")
		if !ok {
			return
		}
		var req counterOfferRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offer, err := svc.Counter(r.Context(), actor, offerID, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOfferView(offer))
	}
}

// OffersForListing lists offers on one of the seller's listings.
func OffersForListing(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers service")
			return
		}
		actor, listingID, ok := actorAndID(w, r, logg, "listingId")
		if !ok {
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForListing(r.Context(), actor, listingID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPageView(page, func(o *models.Offer) offerView { return newOfferView(o) }))
	}
}

func OffersMine(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers service")
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
		page, err := svc.ListForBuyer(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPageView(page, func(o *models.Offer) offerView { return newOfferView(o) }))
	}
}

func offerAction(logg *logger.Logger, fn func(context.Context, auth.Actor, uuid.UUID) (*models.Offer, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, offerID, ok := actorAndID(w, r, logg, "offerId")
		if !ok {
			return
		}
		offer, err := fn(r.Context(), actor, offerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOfferView(offer))
	}
}
