package square

import (
	"strings"
	"unicode"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// statementIDMax is Square's limit for the card statement identifier.
const statementIDMax = 20

// PaymentCreateParams describes one charge against a marketplace order.
// ReferenceID carries our payment id so webhooks can be matched back.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	ReferenceID    string
	OrderNumber    string
	BuyerEmail     string
}

func (p PaymentCreateParams) validate() error {
	switch {
	case p.AmountCents <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "square charge amount must be positive")
	case strings.TrimSpace(p.SourceID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "square charge requires a card source token")
	case strings.TrimSpace(p.ReferenceID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "square charge requires a payment reference")
	}
	return nil
}

// toSquareRequest captures immediately and refuses partial authorization;
// the seller's share is held in escrow on our side, not at Square.
func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey:             idempotencyKey,
		SourceID:                   strings.TrimSpace(p.SourceID),
		AmountMoney:                moneyPtr(p.AmountCents, p.Currency),
		LocationID:                 ptrString(p.LocationID),
		ReferenceID:                ptrString(p.ReferenceID),
		Autocomplete:               boolPtr(true),
		AcceptPartialAuthorization: boolPtr(false),
		BuyerEmailAddress:          ptrString(p.BuyerEmail),
	}
	if number := strings.TrimSpace(p.OrderNumber); number != "" {
		req.Note = ptrString("Order " + number)
		req.StatementDescriptionIdentifier = ptrString(statementID(number))
	}
	return req
}

// statementID keeps the alphanumeric tail of an order number, which is the
// part that differs between orders.
func statementID(orderNumber string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(orderNumber) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > statementIDMax {
		out = out[len(out)-statementIDMax:]
	}
	return out
}

func ptrString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func boolPtr(value bool) *bool {
	return &value
}

func moneyPtr(amount int64, currency string) *sq.Money {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "USD"
	}
	c := sq.Currency(code)
	return &sq.Money{Amount: &amount, Currency: &c}
}
