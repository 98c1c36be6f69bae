package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox/payloads"
)

type countingMetrics struct {
	failures map[string]int
}

func (m *countingMetrics) IncEmitFailure(event string) {
	if m.failures == nil {
		m.failures = map[string]int{}
	}
	m.failures[event]++
}

type failingWriter struct{}

func (failingWriter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) (*models.OutboxEvent, error) {
	return nil, errors.New("outbox unavailable")
}

func TestOutboxNotifierPersistsEnvelope(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)
	n, err := NewOutboxNotifier(client, svc, 0, nil, nil)
	require.NoError(t, err)

	offerID := uuid.New()
	buyer := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n.Emit(ctx, Event{
		Name:          enums.EventOfferCreated,
		AggregateType: enums.AggregateOffer,
		AggregateID:   offerID,
		Actor:         buyer,
		Payload:       payloads.OfferCreatedEvent{OfferID: offerID, Round: 1},
	})

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, offerID, rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, "offer.created", envelope.EventName)
	require.NotNil(t, envelope.Actor)
	require.Equal(t, buyer.UserID, envelope.Actor.UserID)
}

func TestOutboxNotifierSwallowsFailures(t *testing.T) {
	client, _ := dbtest.Client(t)
	metrics := &countingMetrics{}
	n, err := NewOutboxNotifier(client, failingWriter{}, 0, metrics, nil)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		n.Emit(context.Background(), Event{Name: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	})
	require.Equal(t, 1, metrics.failures["order.paid"])
}

func TestRecorderKeepsOrder(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(context.Background(), Event{Name: enums.EventOfferAccepted})
	rec.Emit(context.Background(), Event{Name: enums.EventOrderCreated})
	require.Equal(t, []enums.OutboxEventType{enums.EventOfferAccepted, enums.EventOrderCreated}, rec.Names())
}
