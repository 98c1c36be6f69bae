package orders

import "github.com/angelmondragon/tradepost-backend/pkg/enums"

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPendingPayment:  {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:            {enums.OrderStatusPreparing, enums.OrderStatusCancelled, enums.OrderStatusRefundRequested},
	enums.OrderStatusPreparing:       {enums.OrderStatusShipped},
	enums.OrderStatusShipped:         {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:       {enums.OrderStatusCompleted},
	enums.OrderStatusRefundRequested: {enums.OrderStatusRefunded},
}

// CanTransition reports whether the order state machine permits from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
