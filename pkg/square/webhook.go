package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the base64 HMAC-SHA256 of notification URL + body.
const SignatureHeader = "x-square-hmacsha256-signature"

// Square payment statuses relevant to order confirmation.
const (
	PaymentStatusApproved  = "APPROVED"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusCanceled  = "CANCELED"
	PaymentStatusFailed    = "FAILED"
)

// Sign computes the signature Square sends for a notification.
func Sign(signatureKey, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the received signature in constant time.
func VerifySignature(signatureKey, notificationURL string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signatureKey == "" || signature == "" {
		return false
	}
	expected := Sign(signatureKey, notificationURL, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookEvent is the subset of a Square payment notification we consume.
type WebhookEvent struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Payment *WebhookPayment `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// WebhookPayment mirrors the payment object embedded in a notification.
type WebhookPayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
	AmountMoney struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"amount_money"`
}

// ParseWebhookEvent decodes a payment.created/payment.updated notification.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode square webhook: %w", err)
	}
	if strings.TrimSpace(event.EventID) == "" {
		return nil, errors.New("square webhook missing event_id")
	}
	if !strings.HasPrefix(event.Type, "payment.") {
		return nil, fmt.Errorf("unsupported square event type %q", event.Type)
	}
	payment := event.Data.Object.Payment
	if payment == nil || strings.TrimSpace(payment.ID) == "" {
		return nil, errors.New("square webhook missing payment object")
	}
	return &event, nil
}

// Payment returns the embedded payment object.
func (e *WebhookEvent) Payment() *WebhookPayment {
	if e == nil {
		return nil
	}
	return e.Data.Object.Payment
}
