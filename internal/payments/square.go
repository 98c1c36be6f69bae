package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
	"github.com/angelmondragon/tradepost-backend/pkg/square"
)

type squareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	VerifyWebhook(body []byte, signature string) bool
}

// SquareProvider charges a tokenized card through the Square Payments API.
// Confirmation still arrives through the payment.updated webhook.
type SquareProvider struct {
	api squareAPI
}

func NewSquareProvider(api squareAPI) (*SquareProvider, error) {
	if api == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareProvider{api: api}, nil
}

func (p *SquareProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderSquare
}

func (p *SquareProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square payments require a card source token")
	}
	payment, err := p.api.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    money.ToMinorUnits(req.Amount),
		Currency:       string(req.Currency),
		SourceID:       req.SourceID,
		IdempotencyKey: "payment-" + req.PaymentID.String(),
		ReferenceID:    req.PaymentID.String(),
		OrderNumber:    req.OrderNumber,
	})
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.GetID() == nil || *payment.GetID() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment id")
	}
	return &Session{Reference: *payment.GetID()}, nil
}

func (p *SquareProvider) VerifySignature(payload []byte, signature string) bool {
	return p.api.VerifyWebhook(payload, signature)
}

func (p *SquareProvider) ParseCallback(payload []byte) (*Callback, error) {
	event, err := square.ParseWebhookEvent(payload)
	if err != nil {
		return nil, err
	}
	payment := event.Payment()
	// reference_id carries our payment id, so a charge whose Square id was
	// never stored still resolves.
	paymentID, _ := uuid.Parse(strings.TrimSpace(payment.ReferenceID))
	cb := &Callback{
		Provider:      enums.PaymentProviderSquare,
		EventID:       event.EventID,
		PaymentID:     paymentID,
		Reference:     payment.ID,
		Amount:        money.FromMinorUnits(payment.AmountMoney.Amount),
		TransactionID: payment.ID,
	}
	switch strings.ToUpper(payment.Status) {
	case square.PaymentStatusCompleted:
		cb.Status = CallbackSuccess
	case square.PaymentStatusFailed, square.PaymentStatusCanceled:
		cb.Status = CallbackFailed
		cb.FailureReason = "square payment " + strings.ToLower(payment.Status)
	default:
		cb.Status = CallbackPending
	}
	return cb, nil
}

func (p *SquareProvider) Acknowledgement() any {
	return map[string]bool{"received": true}
}
