package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// Provider adapts one external payment gateway.
type Provider interface {
	Name() enums.PaymentProvider
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// VerifySignature authenticates a raw callback before anything else
	// reads it.
	VerifySignature(payload []byte, signature string) bool
	ParseCallback(payload []byte) (*Callback, error)
	// Acknowledgement is the response body the gateway expects on success.
	Acknowledgement() any
}

// SessionRequest carries what a gateway needs to open a checkout.
type SessionRequest struct {
	PaymentID   uuid.UUID
	OrderID     uuid.UUID
	OrderNumber string
	Amount      decimal.Decimal
	Currency    enums.Currency
	SourceID    string
}

// Session is the gateway's answer to CreateSession.
type Session struct {
	Reference   string
	RedirectURL *string
}

// CallbackStatus is the normalized outcome a gateway reports.
type CallbackStatus string

const (
	CallbackSuccess CallbackStatus = "success"
	CallbackFailed  CallbackStatus = "failed"
	// CallbackPending covers intermediate gateway states that need no action.
	CallbackPending CallbackStatus = "pending"
)

// Callback is a verified, parsed gateway notification.
type Callback struct {
	Provider enums.PaymentProvider
	EventID  string
	// PaymentID is our payment id when the gateway echoes it back. Callbacks
	// resolve by it first and by Reference otherwise.
	PaymentID     uuid.UUID
	Reference     string
	Status        CallbackStatus
	Amount        decimal.Decimal
	TransactionID string
	FailureReason string
}

// Registry resolves providers by name.
type Registry struct {
	providers map[enums.PaymentProvider]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: map[enums.PaymentProvider]Provider{}}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := r.providers[p.Name()]; dup {
			return nil, fmt.Errorf("payment provider %q registered twice", p.Name())
		}
		r.providers[p.Name()] = p
	}
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("at least one payment provider required")
	}
	return r, nil
}

// Get returns the named provider or a validation error.
func (r *Registry) Get(name string) (Provider, error) {
	key := enums.PaymentProvider(strings.ToLower(strings.TrimSpace(name)))
	p, ok := r.providers[key]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment provider %q", name))
	}
	return p, nil
}
