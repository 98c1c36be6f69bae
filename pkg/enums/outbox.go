package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOffer       OutboxAggregateType = "offer"
	AggregateOrder       OutboxAggregateType = "order"
	AggregatePayment     OutboxAggregateType = "payment"
	AggregatePaymentHold OutboxAggregateType = "payment_hold"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOffer,
	AggregateOrder,
	AggregatePayment,
	AggregatePaymentHold,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres. Values are the
// public event names delivered to subscribers.
type OutboxEventType string

const (
	EventOfferCreated   OutboxEventType = "offer.created"
	EventOfferAccepted  OutboxEventType = "offer.accepted"
	EventOrderCreated   OutboxEventType = "order.created"
	EventOrderPaid      OutboxEventType = "order.paid"
	EventOrderCancelled OutboxEventType = "order.cancelled"
	EventOrderRefunded  OutboxEventType = "order.refunded"
	EventEscrowReleased OutboxEventType = "escrow.released"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOfferCreated,
	EventOfferAccepted,
	EventOrderCreated,
	EventOrderPaid,
	EventOrderCancelled,
	EventOrderRefunded,
	EventEscrowReleased,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
