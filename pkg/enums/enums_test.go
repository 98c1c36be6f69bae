package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderStatusClassification(t *testing.T) {
	for _, status := range validOrderStatuses {
		require.False(t, status.IsActive() && status.IsTerminal(), "status %s cannot be both active and terminal", status)
	}
	require.True(t, OrderStatusPendingPayment.IsActive())
	require.True(t, OrderStatusDelivered.IsActive())
	require.False(t, OrderStatusRefundRequested.IsActive())
	require.False(t, OrderStatusRefundRequested.IsTerminal())
	require.True(t, OrderStatusRefunded.IsTerminal())
}

func TestOfferStatusTerminal(t *testing.T) {
	require.False(t, OfferStatusPending.IsTerminal())
	for _, status := range []OfferStatus{OfferStatusAccepted, OfferStatusRejected, OfferStatusExpired, OfferStatusCancelled, OfferStatusCountered} {
		require.True(t, status.IsTerminal(), status)
	}
}

func TestParsers(t *testing.T) {
	provider, err := ParsePaymentProvider(" Square ")
	require.NoError(t, err)
	require.Equal(t, PaymentProviderSquare, provider)

	_, err = ParsePaymentProvider("paypal")
	require.Error(t, err)

	status, err := ParseOrderStatus("refund_requested")
	require.NoError(t, err)
	require.Equal(t, OrderStatusRefundRequested, status)

	_, err = ParseListingStatus("archived")
	require.Error(t, err)

	event, err := ParseOutboxEventType("order.paid")
	require.NoError(t, err)
	require.Equal(t, EventOrderPaid, event)
}

func TestPaymentStatusTerminal(t *testing.T) {
	require.False(t, PaymentStatusPending.IsTerminal())
	require.True(t, PaymentStatusCompleted.IsTerminal())
	require.True(t, PaymentStatusFailed.IsTerminal())
}
