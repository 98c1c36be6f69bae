package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, event *models.LedgerEvent) error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, event *models.LedgerEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, event)
	}
	return nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	return nil, nil
}

func (f *fakeRepository) Exists(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	return false, nil
}

func TestService_RecordEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	metadata := json.RawMessage(`{"reason":"buyer_refund"}`)
	holdID := uuid.New()
	input := RecordLedgerEventInput{
		OrderID:  uuid.New(),
		HoldID:   &holdID,
		SellerID: uuid.New(),
		Type:     enums.LedgerEventTypeRefund,
		Amount:   decimal.RequireFromString("120.005"),
		Partial:  true,
		Metadata: metadata,
	}

	var created *models.LedgerEvent
	repo.createFn = func(ctx context.Context, event *models.LedgerEvent) error {
		created = event
		return nil
	}

	got, err := svc.RecordEvent(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("RecordEvent error: %v", err)
	}
	if created == nil {
		t.Fatal("expected ledger event to be created")
	}
	if created.OrderID != input.OrderID || created.Type != input.Type || !created.Partial {
		t.Fatalf("unexpected ledger event data: %+v", created)
	}
	if !created.Amount.Equal(decimal.RequireFromString("120.01")) {
		t.Fatalf("expected amount rounded half up, got %s", created.Amount)
	}
	if created.HoldID == nil || *created.HoldID != holdID {
		t.Fatalf("missing hold reference: %+v", created)
	}
	if string(created.Metadata) != string(metadata) {
		t.Fatalf("metadata mismatch: %s", created.Metadata)
	}
	if got != created {
		t.Fatalf("service should return created event")
	}
}

func TestService_RecordEventValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		input RecordLedgerEventInput
	}{
		{
			name: "missing order id",
			input: RecordLedgerEventInput{
				SellerID: uuid.New(),
				Type:     enums.LedgerEventTypeHoldCreated,
			},
		},
		{
			name: "missing seller",
			input: RecordLedgerEventInput{
				OrderID: uuid.New(),
				Type:    enums.LedgerEventTypeHoldCreated,
			},
		},
		{
			name: "invalid type",
			input: RecordLedgerEventInput{
				OrderID:  uuid.New(),
				SellerID: uuid.New(),
				Type:     enums.LedgerEventType("not_real"),
			},
		},
		{
			name: "negative amount",
			input: RecordLedgerEventInput{
				OrderID:  uuid.New(),
				SellerID: uuid.New(),
				Type:     enums.LedgerEventTypeHoldReleased,
				Amount:   decimal.NewFromInt(-1),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordEvent(context.Background(), nil, tc.input); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestService_RecordEventRepoError(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	expectedErr := errors.New("boom")
	repo.createFn = func(ctx context.Context, event *models.LedgerEvent) error {
		return expectedErr
	}

	if _, err := svc.RecordEvent(context.Background(), nil, RecordLedgerEventInput{
		OrderID:  uuid.New(),
		SellerID: uuid.New(),
		Type:     enums.LedgerEventTypeHoldReleased,
		Amount:   decimal.NewFromInt(100),
	}); !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}

func TestService_HasEventReadsStoredRows(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	ctx := context.Background()
	orderID := uuid.New()

	if _, err := svc.RecordEvent(ctx, nil, RecordLedgerEventInput{
		OrderID:  orderID,
		SellerID: uuid.New(),
		Type:     enums.LedgerEventTypeHoldCreated,
		Amount:   decimal.NewFromInt(570),
	}); err != nil {
		t.Fatalf("RecordEvent error: %v", err)
	}

	ok, err := svc.HasEvent(ctx, orderID, enums.LedgerEventTypeHoldCreated)
	if err != nil || !ok {
		t.Fatalf("expected hold_created event, got %v %v", ok, err)
	}
	ok, err = svc.HasEvent(ctx, orderID, enums.LedgerEventTypeHoldReleased)
	if err != nil || ok {
		t.Fatalf("did not expect hold_released event, got %v %v", ok, err)
	}

	events, err := svc.ListForOrder(ctx, orderID)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one event, got %d (%v)", len(events), err)
	}

	sum, err := svc.SummaryForOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("SummaryForOrder error: %v", err)
	}
	if !sum.Held.Equal(decimal.NewFromInt(570)) {
		t.Fatalf("expected 570 held, got %s", sum.Held)
	}
}

func TestSummarizeTracksHeldReleasedAndRefunded(t *testing.T) {
	events := []models.LedgerEvent{
		{Type: enums.LedgerEventTypeHoldCreated, Amount: decimal.RequireFromString("95.00")},
		{Type: enums.LedgerEventTypeHoldCancelled, Amount: decimal.RequireFromString("95.00")},
		{Type: enums.LedgerEventTypeRefund, Amount: decimal.RequireFromString("40.00"), Partial: true},
	}
	sum := Summarize(events)
	if !sum.Held.IsZero() || !sum.Released.IsZero() {
		t.Fatalf("expected nothing held or released, got %+v", sum)
	}
	if !sum.Refunded.Equal(decimal.RequireFromString("40")) || sum.Events != 3 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	released := Summarize([]models.LedgerEvent{
		{Type: enums.LedgerEventTypeHoldCreated, Amount: decimal.RequireFromString("95.00")},
		{Type: enums.LedgerEventTypeHoldReleased, Amount: decimal.RequireFromString("95.00")},
	})
	if !released.Outstanding().IsZero() || !released.Released.Equal(decimal.RequireFromString("95")) {
		t.Fatalf("unexpected release summary %+v", released)
	}
}
