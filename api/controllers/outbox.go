package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// DeadLetters is the operator view of events the publisher gave up on.
type DeadLetters interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type deadLetterView struct {
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Error         *string                    `json:"error,omitempty"`
	Attempts      int                        `json:"attempts"`
	Payload       json.RawMessage            `json:"payload"`
	FailedAt      time.Time                  `json:"failed_at"`
}

func newDeadLetterView(d *models.OutboxDLQ) deadLetterView {
	return deadLetterView{
		EventID:       d.EventID,
		EventType:     d.EventType,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		Reason:        d.ErrorReason,
		Error:         d.ErrorMessage,
		Attempts:      d.AttemptCount,
		Payload:       d.Payload,
		FailedAt:      d.FailedAt,
	}
}

// AdminDeadLetters lists dead-lettered events, optionally for one offer or
// order via ?aggregate_type=order&aggregate_id=<uuid>.
func AdminDeadLetters(store DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			unavailable(w, r, logg, "dead letters")
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := outbox.DLQFilter{Limit: limit}
		if raw := strings.TrimSpace(r.URL.Query().Get("aggregate_type")); raw != "" {
			kind, err := enums.ParseOutboxAggregateType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid aggregate_type"))
				return
			}
			filter.AggregateType = kind
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("aggregate_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid aggregate_id"))
				return
			}
			filter.AggregateID = id
		}

		rows, err := store.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, mapSlice(rows, func(d *models.OutboxDLQ) deadLetterView { return newDeadLetterView(d) }))
	}
}

// AdminDeadLetterRequeue hands a dead-lettered event back to the publisher.
func AdminDeadLetterRequeue(store DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			unavailable(w, r, logg, "dead letters")
			return
		}
		actor, eventID, ok := actorAndID(w, r, logg, "eventId")
		if !ok {
			return
		}
		if err := store.Requeue(r.Context(), eventID); err != nil {
			if errors.Is(err, outbox.ErrNotDeadLettered) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "event is not dead-lettered"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue event"))
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"event_id": eventID.String(),
				"actor_id": actor.UserID.String(),
			})
			logg.Info(ctx, "dead-lettered event requeued")
		}
		responses.WriteSuccess(w, map[string]any{"event_id": eventID, "requeued": true})
	}
}
