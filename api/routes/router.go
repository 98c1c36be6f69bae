package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tradepost-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/tradepost-backend/api/controllers/webhooks"
	"github.com/angelmondragon/tradepost-backend/api/middleware"
	"github.com/angelmondragon/tradepost-backend/internal/addresses"
	"github.com/angelmondragon/tradepost-backend/internal/commission"
	"github.com/angelmondragon/tradepost-backend/internal/escrow"
	"github.com/angelmondragon/tradepost-backend/internal/ledger"
	"github.com/angelmondragon/tradepost-backend/internal/listings"
	"github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/internal/orders"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/metrics"
	"github.com/angelmondragon/tradepost-backend/pkg/redis"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies is everything the HTTP surface needs. Redis, DeadLetters,
// WebhookGuard, Metrics and MetricsHandler may be nil.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis *redis.Client

	Listings   listings.Service
	Offers     offers.Service
	Orders     orders.Service
	Payments   payments.Service
	Addresses  addresses.Service
	Commission commission.Service
	Escrow     escrow.Service
	Ledger     ledger.Service

	DeadLetters controllers.DeadLetters

	Providers    *payments.Registry
	WebhookGuard *payments.EventGuard
	Metrics      *metrics.MarketplaceMetrics

	MetricsHandler http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	var (
		idempotencyStore redis.IdempotencyStore
		limiter          rateLimiter
		readiness        = map[string]controllers.Pinger{"db": deps.DB}
	)
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		limiter = deps.Redis
		readiness["redis"] = deps.Redis
	}

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.UserLimit)
	offerPolicy := middleware.NewRateLimitPolicy("offers", cfg.RateLimit.Window, cfg.RateLimit.OffersLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.RateLimit.Window, cfg.RateLimit.UserLimit)

	callbackParams := webhookcontrollers.PaymentCallbackParams{
		Service: deps.Payments,
		Logger:  logg,
	}
	if deps.Providers != nil {
		callbackParams.Providers = deps.Providers
	}
	if deps.WebhookGuard != nil {
		callbackParams.Guard = deps.WebhookGuard
	}
	if deps.Metrics != nil {
		callbackParams.Metrics = deps.Metrics
	}

	sellerOnly := middleware.RequireRole(logg, enums.UserRoleSeller, enums.UserRoleAdmin)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, limiter, logg)).
			Post("/webhooks/payments/{provider}", webhookcontrollers.PaymentCallback(callbackParams))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RateLimit(apiPolicy, limiter, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Route("/listings", func(r chi.Router) {
				r.Get("/", controllers.ListingBrowse(deps.Listings, logg))
				r.With(sellerOnly).Post("/", controllers.ListingCreate(deps.Listings, logg))
				r.With(sellerOnly).Get("/mine", controllers.ListingMine(deps.Listings, logg))
				r.Get("/{listingId}", controllers.ListingGet(deps.Listings, logg))
				r.With(sellerOnly).Post("/{listingId}/publish", controllers.ListingPublish(deps.Listings, logg))
				r.With(sellerOnly).Get("/{listingId}/offers", controllers.OffersForListing(deps.Offers, logg))
			})

			r.Route("/offers", func(r chi.Router) {
				r.With(middleware.RateLimit(offerPolicy, limiter, logg)).Post("/", controllers.OfferCreate(deps.Offers, logg))
				r.Get("/mine", controllers.OffersMine(deps.Offers, logg))
				r.Get("/{offerId}", controllers.OfferGet(deps.Offers, logg))
				r.Post("/{offerId}/cancel", controllers.OfferCancel(deps.Offers, logg))
				r.With(sellerOnly).Post("/{offerId}/accept", controllers.OfferAccept(deps.Offers, logg))
				r.With(sellerOnly).Post("/{offerId}/reject", controllers.OfferReject(deps.Offers, logg))
				r.With(sellerOnly).Post("/{offerId}/counter", controllers.OfferCounter(deps.Offers, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.OrderCreate(deps.Orders, logg))
				r.Get("/", controllers.OrderList(deps.Orders, logg))
				r.Get("/{orderId}", controllers.OrderGet(deps.Orders, logg))
				r.Get("/{orderId}/payments", controllers.OrderPayments(deps.Payments, logg))
				r.Post("/{orderId}/cancel", controllers.OrderCancel(deps.Orders, logg))
				r.With(sellerOnly).Post("/{orderId}/prepare", controllers.OrderPrepare(deps.Orders, logg))
				r.With(sellerOnly).Post("/{orderId}/ship", controllers.OrderShip(deps.Orders, logg))
				r.Post("/{orderId}/confirm-receipt", controllers.OrderConfirmReceipt(deps.Orders, logg))
				r.Post("/{orderId}/refund-request", controllers.OrderRequestRefund(deps.Orders, logg))
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", controllers.PaymentInitiate(deps.Payments, cfg.Payments.DefaultProvider, logg))
				r.Get("/{paymentId}", controllers.PaymentGet(deps.Payments, logg))
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", controllers.AddressList(deps.Addresses, logg))
				r.Post("/", controllers.AddressCreate(deps.Addresses, logg))
			})

			r.Post("/commission/quote", controllers.CommissionQuote(deps.Commission, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.RateLimit(apiPolicy, limiter, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Post("/status", controllers.AdminOrderStatus(deps.Orders, logg))
			r.Post("/deliver", controllers.AdminOrderDelivered(deps.Orders, logg))
			r.Post("/refund", controllers.AdminOrderRefund(deps.Orders, logg))
			r.Get("/hold", controllers.AdminOrderHold(deps.Escrow, logg))
			r.Get("/ledger", controllers.AdminOrderLedger(deps.Ledger, logg))
		})
		r.Get("/escrow/due", controllers.AdminEscrowDue(deps.Escrow, logg))
		r.Route("/commission/rules", func(r chi.Router) {
			r.Get("/", controllers.AdminCommissionRules(deps.Commission, logg))
			r.Post("/", controllers.AdminCommissionRuleCreate(deps.Commission, logg))
		})
		r.Route("/outbox/dead-letters", func(r chi.Router) {
			r.Get("/", controllers.AdminDeadLetters(deps.DeadLetters, logg))
			r.Post("/{eventId}/requeue", controllers.AdminDeadLetterRequeue(deps.DeadLetters, logg))
		})
	})

	return r
}
