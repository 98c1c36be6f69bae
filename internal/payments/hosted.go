package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// HostedConfig configures the redirect gateway.
type HostedConfig struct {
	GatewayURL string
	MerchantID string
	Secret     string
	ReturnURL  string
}

// HostedProvider sends buyers to a hosted payment page and trusts callbacks
// whose hash is the hex HMAC-SHA256 of reference|status|amount.
type HostedProvider struct {
	cfg HostedConfig
}

func NewHostedProvider(cfg HostedConfig) (*HostedProvider, error) {
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return nil, errors.New("hosted gateway url is required")
	}
	if _, err := url.Parse(cfg.GatewayURL); err != nil {
		return nil, fmt.Errorf("hosted gateway url: %w", err)
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("hosted gateway secret is required")
	}
	return &HostedProvider{cfg: cfg}, nil
}

func (p *HostedProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderHosted
}

func (p *HostedProvider) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	reference := req.PaymentID.String()
	amount := money.Format(req.Amount)
	currency := string(req.Currency)

	values := url.Values{}
	values.Set("merchant_id", p.cfg.MerchantID)
	values.Set("reference", reference)
	values.Set("order_number", req.OrderNumber)
	values.Set("amount", amount)
	values.Set("currency", currency)
	if p.cfg.ReturnURL != "" {
		values.Set("return_url", p.cfg.ReturnURL)
	}
	values.Set("signature", hostedHMAC(p.cfg.Secret, p.cfg.MerchantID, reference, amount, currency))

	redirect := strings.TrimRight(p.cfg.GatewayURL, "?") + "?" + values.Encode()
	return &Session{Reference: reference, RedirectURL: &redirect}, nil
}

// hostedCallback is the JSON body the gateway posts back.
type hostedCallback struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
	Hash          string `json:"hash"`
}

// SignCallback computes the hash the gateway attaches to a callback.
func SignCallback(secret, reference, status, amount string) string {
	return hostedHMAC(secret, reference, status, amount)
}

func (p *HostedProvider) VerifySignature(payload []byte, signature string) bool {
	var body hostedCallback
	if err := json.Unmarshal(payload, &body); err != nil {
		return false
	}
	received := strings.TrimSpace(signature)
	if received == "" {
		received = strings.TrimSpace(body.Hash)
	}
	if received == "" {
		return false
	}
	expected := SignCallback(p.cfg.Secret, body.Reference, body.Status, body.Amount)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(received)))
}

func (p *HostedProvider) ParseCallback(payload []byte) (*Callback, error) {
	var body hostedCallback
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode hosted callback: %w", err)
	}
	reference := strings.TrimSpace(body.Reference)
	if reference == "" {
		return nil, errors.New("hosted callback missing reference")
	}
	var status CallbackStatus
	switch strings.ToLower(strings.TrimSpace(body.Status)) {
	case "success":
		status = CallbackSuccess
	case "failed":
		status = CallbackFailed
	default:
		return nil, fmt.Errorf("unsupported hosted callback status %q", body.Status)
	}
	amount, err := money.Parse(body.Amount)
	if err != nil {
		return nil, err
	}
	eventID := strings.TrimSpace(body.TransactionID)
	if eventID == "" {
		eventID = reference + ":" + string(status)
	}
	paymentID, _ := uuid.Parse(reference)
	return &Callback{
		Provider:      enums.PaymentProviderHosted,
		EventID:       eventID,
		PaymentID:     paymentID,
		Reference:     reference,
		Status:        status,
		Amount:        amount,
		TransactionID: strings.TrimSpace(body.TransactionID),
		FailureReason: strings.TrimSpace(body.Reason),
	}, nil
}

func (p *HostedProvider) Acknowledgement() any {
	return map[string]string{"status": "OK"}
}

func hostedHMAC(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
