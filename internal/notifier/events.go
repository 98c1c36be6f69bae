package notifier

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox/payloads"
)

func OfferCreated(offer *models.Offer, actor auth.Actor) Event {
	return Event{
		Name:          enums.EventOfferCreated,
		AggregateType: enums.AggregateOffer,
		AggregateID:   offer.ID,
		Actor:         actor,
		Payload: payloads.OfferCreatedEvent{
			OfferID:   offer.ID,
			ListingID: offer.ListingID,
			BuyerID:   offer.BuyerID,
			SellerID:  offer.SellerID,
			Amount:    offer.Amount,
			ExpiresAt: offer.ExpiresAt,
			Round:     offer.Round,
		},
	}
}

func OfferAccepted(offer *models.Offer, order *models.Order, actor auth.Actor) Event {
	return Event{
		Name:          enums.EventOfferAccepted,
		AggregateType: enums.AggregateOffer,
		AggregateID:   offer.ID,
		Actor:         actor,
		Payload: payloads.OfferAcceptedEvent{
			OfferID: offer.ID,
			OrderID: order.ID,
			Amount:  offer.Amount,
		},
	}
}

func OrderCreated(order *models.Order, actor auth.Actor) Event {
	return Event{
		Name:          enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Payload: payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BuyerID:     order.BuyerID,
			SellerID:    order.SellerID,
			TotalAmount: order.TotalAmount,
			OfferID:     order.OfferID,
		},
	}
}

// OrderPaid carries the provider transaction id so fulfilment can reconcile.
func OrderPaid(order *models.Order, transactionID string, actor auth.Actor) Event {
	return Event{
		Name:          enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Payload: payloads.OrderPaidEvent{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			TotalAmount:      order.TotalAmount,
			CommissionAmount: order.CommissionAmount,
			TransactionID:    transactionID,
			ShippingAddress:  order.ShippingAddress,
		},
	}
}

func OrderCancelled(order *models.Order, reason string, actor auth.Actor) Event {
	return Event{
		Name:          enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Payload: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			ListingID:   order.ListingID,
			BuyerID:     order.BuyerID,
			SellerID:    order.SellerID,
			OfferID:     order.OfferID,
			Reason:      reason,
		},
	}
}

func OrderRefunded(order *models.Order, payment *models.Payment, amount decimal.Decimal, actor auth.Actor) Event {
	return Event{
		Name:          enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Payload: payloads.OrderRefundedEvent{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			PaymentID:    payment.ID,
			RefundAmount: amount,
			Partial:      amount.LessThan(payment.Amount),
		},
	}
}

func EscrowReleased(hold *models.PaymentHold, actor auth.Actor) Event {
	releasedAt := time.Now().UTC()
	if hold.ReleasedAt != nil {
		releasedAt = *hold.ReleasedAt
	}
	return Event{
		Name:          enums.EventEscrowReleased,
		AggregateType: enums.AggregatePaymentHold,
		AggregateID:   hold.ID,
		Actor:         actor,
		Payload: payloads.EscrowReleasedEvent{
			HoldID:     hold.ID,
			OrderID:    hold.OrderID,
			SellerID:   hold.SellerID,
			Amount:     hold.Amount,
			ReleasedAt: releasedAt,
		},
	}
}
