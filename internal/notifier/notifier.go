// Package notifier hands committed domain events to asynchronous consumers.
// Emission happens after the business transaction commits and never reports
// failure back to the caller.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
)

// DefaultEmitTimeout bounds how long a single emission may take.
const DefaultEmitTimeout = 5 * time.Second

// Event is a committed domain fact.
type Event struct {
	Name          enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         auth.Actor
	Payload       any
}

type Notifier interface {
	Emit(ctx context.Context, event Event)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxWriter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (*models.OutboxEvent, error)
}

type emitFailureRecorder interface {
	IncEmitFailure(event string)
}

// OutboxNotifier persists events into outbox_events in a short transaction of
// its own. The outbox publisher relays them to Pub/Sub.
type OutboxNotifier struct {
	tx      txRunner
	outbox  outboxWriter
	timeout time.Duration
	metrics emitFailureRecorder
	logg    *logger.Logger
}

// NewOutboxNotifier builds the durable notifier. metrics may be nil.
func NewOutboxNotifier(tx txRunner, writer outboxWriter, timeout time.Duration, metrics emitFailureRecorder, logg *logger.Logger) (*OutboxNotifier, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if writer == nil {
		return nil, fmt.Errorf("outbox writer required")
	}
	if timeout <= 0 {
		timeout = DefaultEmitTimeout
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &OutboxNotifier{
		tx:      tx,
		outbox:  writer,
		timeout: timeout,
		metrics: metrics,
		logg:    logg,
	}, nil
}

// Emit detaches from the request context so a client disconnect after commit
// does not drop the event.
func (n *OutboxNotifier) Emit(ctx context.Context, event Event) {
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	domainEvent := outbox.DomainEvent{
		EventType:     event.Name,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Data:          event.Payload,
		OccurredAt:    time.Now().UTC(),
	}
	if event.Actor.UserID != uuid.Nil || event.Actor.Role != "" {
		domainEvent.Actor = &outbox.ActorRef{UserID: event.Actor.UserID, Role: event.Actor.Role}
	}

	err := n.tx.WithTx(emitCtx, func(tx *gorm.DB) error {
		_, err := n.outbox.Emit(emitCtx, tx, domainEvent)
		return err
	})
	if err == nil {
		return
	}
	if n.metrics != nil {
		n.metrics.IncEmitFailure(string(event.Name))
	}
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"event":        event.Name,
		"aggregate_id": event.AggregateID.String(),
	})
	n.logg.Error(logCtx, "failed to emit domain event", err)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names lists emitted event names in order.
func (r *Recorder) Names() []enums.OutboxEventType {
	events := r.Events()
	names := make([]enums.OutboxEventType, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	return names
}
