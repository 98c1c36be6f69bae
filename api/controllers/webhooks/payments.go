package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

const maxPayloadBytes = 1 << 20

// signatureHeaders maps each gateway to the header carrying its signature.
var signatureHeaders = map[enums.PaymentProvider]string{
	enums.PaymentProviderSquare: "X-Square-Hmacsha256-Signature",
	enums.PaymentProviderHosted: "X-Gateway-Signature",
}

type callbackService interface {
	Authenticate(ctx context.Context, provider string, payload []byte, signature string) (*payments.Callback, error)
	Apply(ctx context.Context, cb *payments.Callback) (*payments.CallbackResult, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, provider, eventID string) (bool, error)
	Delete(ctx context.Context, provider, eventID string) error
}

type providerLookup interface {
	Get(name string) (payments.Provider, error)
}

type webhookMetrics interface {
	IncWebhookEvent(provider, outcome string)
}

// PaymentCallbackParams wires the gateway callback handler. Guard and
// Metrics are optional.
type PaymentCallbackParams struct {
	Service   callbackService
	Providers providerLookup
	Guard     eventGuard
	Metrics   webhookMetrics
	Logger    *logger.Logger
}

// PaymentCallback receives asynchronous payment notifications at
// /webhooks/payments/{provider}. The signature is verified before anything
// else reads the payload, and redelivered events are acknowledged without
// touching state.
func PaymentCallback(params PaymentCallbackParams) http.HandlerFunc {
	logg := params.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if params.Service == nil || params.Providers == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment callbacks unavailable"))
			return
		}

		name := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
		provider, err := params.Providers.Get(name)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		// Some gateways sign inside the body, so an empty header is left to
		// the provider to judge.
		signature := strings.TrimSpace(r.Header.Get(signatureHeaders[provider.Name()]))

		cb, err := params.Service.Authenticate(ctx, name, payload, signature)
		if err != nil {
			record(params.Metrics, name, string(pkgerrors.CodeOf(err)))
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if params.Guard != nil && cb.EventID != "" {
			seen, err := params.Guard.CheckAndMark(ctx, name, cb.EventID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check callback idempotency"))
				return
			}
			if seen {
				record(params.Metrics, name, string(payments.OutcomeDuplicate))
				if logg != nil {
					logg.Info(logg.WithField(ctx, "event_id", cb.EventID), "payment callback replayed")
				}
				responses.WriteRaw(w, http.StatusOK, provider.Acknowledgement())
				return
			}
		}

		result, err := params.Service.Apply(ctx, cb)
		if err != nil {
			if params.Guard != nil && cb.EventID != "" {
				if delErr := params.Guard.Delete(ctx, name, cb.EventID); delErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "event_id", cb.EventID), "payment callback guard release failed")
				}
			}
			record(params.Metrics, name, string(pkgerrors.CodeOf(err)))
			responses.WriteError(ctx, logg, w, err)
			return
		}

		record(params.Metrics, name, string(result.Outcome))
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"provider":  name,
				"event_id":  cb.EventID,
				"reference": cb.Reference,
				"outcome":   string(result.Outcome),
			})
			logg.Info(ctx, "payment callback processed")
		}
		responses.WriteRaw(w, http.StatusOK, provider.Acknowledgement())
	}
}

func record(m webhookMetrics, provider, outcome string) {
	if m == nil {
		return
	}
	m.IncWebhookEvent(provider, strings.ToLower(outcome))
}
