// Package marketplace assembles the offer, order and payment engines from
// their repositories so every binary wires them the same way.
package marketplace

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tradepost-backend/internal/addresses"
	"github.com/angelmondragon/tradepost-backend/internal/commission"
	"github.com/angelmondragon/tradepost-backend/internal/escrow"
	"github.com/angelmondragon/tradepost-backend/internal/inventory"
	"github.com/angelmondragon/tradepost-backend/internal/ledger"
	"github.com/angelmondragon/tradepost-backend/internal/listings"
	"github.com/angelmondragon/tradepost-backend/internal/notifier"
	"github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/internal/orders"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/metrics"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
	"github.com/angelmondragon/tradepost-backend/pkg/redis"
	"github.com/angelmondragon/tradepost-backend/pkg/square"
)

// Params carries the shared infrastructure. Redis may be nil, in which case
// the listing guard stays in process.
type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   *redis.Client
	Metrics *metrics.MarketplaceMetrics
}

// Services is the assembled domain layer.
type Services struct {
	Listings   listings.Service
	Offers     offers.Service
	Orders     orders.Service
	Addresses  addresses.Service
	Commission commission.Service
	Escrow     escrow.Service
	Ledger     ledger.Service

	Locker   *inventory.Locker
	Guard    inventory.Guard
	Notifier notifier.Notifier

	params Params
}

// NewServices builds everything except payments, which need gateway
// credentials only the API holds.
func NewServices(params Params) (*Services, error) {
	cfg := params.Config
	logg := params.Logger
	if cfg == nil || logg == nil || params.DB == nil {
		return nil, fmt.Errorf("config, logger and database are required")
	}
	conn := params.DB.DB()
	market := cfg.Marketplace

	currency, err := enums.ParseCurrency(market.Currency)
	if err != nil {
		return nil, fmt.Errorf("marketplace currency: %w", err)
	}

	// MarketplaceMetrics methods are nil-safe.
	recorder := params.Metrics

	locker := inventory.NewLocker(recorder)
	var guard inventory.Guard = inventory.NewMemoryGuard(recorder)
	if cfg.FeatureFlags.RedisListingLock && params.Redis != nil {
		guard = inventory.NewRedisGuard(params.Redis, market.ListingGuardTTL, recorder, logg)
	}

	n, err := notifier.NewOutboxNotifier(params.DB, outbox.NewService(outbox.NewRepository(conn), logg), cfg.Outbox.EmitTimeout, recorder, logg)
	if err != nil {
		return nil, fmt.Errorf("outbox notifier: %w", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	escrowSvc, err := escrow.NewService(escrow.NewRepository(conn), ledgerSvc, locker, market.EscrowHold(), logg)
	if err != nil {
		return nil, fmt.Errorf("escrow service: %w", err)
	}
	commissionSvc, err := commission.NewService(commission.NewRepository(conn), market.FallbackRate(), recorder, logg)
	if err != nil {
		return nil, fmt.Errorf("commission service: %w", err)
	}
	addressSvc, err := addresses.NewService(addresses.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("address service: %w", err)
	}
	listingRepo := listings.NewRepository(conn)
	listingSvc, err := listings.NewService(listingRepo, currency, logg)
	if err != nil {
		return nil, fmt.Errorf("listing service: %w", err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Tx:         params.DB,
		Repo:       orders.NewRepository(conn),
		Listings:   listingRepo,
		Locker:     locker,
		Guard:      guard,
		Commission: commissionSvc,
		Addresses:  addressSvc,
		Escrow:     escrowSvc,
		Notifier:   n,
		Metrics:    recorder,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	offerSvc, err := offers.NewService(offers.ServiceParams{
		Config: offers.Config{
			MinOfferPercent: market.MinOfferPercent,
			TTL:             market.OfferTTL,
		},
		Tx:        params.DB,
		Repo:      offers.NewRepository(conn),
		Listings:  listingRepo,
		Locker:    locker,
		Guard:     guard,
		Orders:    orderSvc,
		Addresses: addressSvc,
		Notifier:  n,
		Metrics:   recorder,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("offer service: %w", err)
	}

	return &Services{
		Listings:   listingSvc,
		Offers:     offerSvc,
		Orders:     orderSvc,
		Addresses:  addressSvc,
		Commission: commissionSvc,
		Escrow:     escrowSvc,
		Ledger:     ledgerSvc,
		Locker:     locker,
		Guard:      guard,
		Notifier:   n,
		params:     params,
	}, nil
}

// Payments is the gateway side of the marketplace.
type Payments struct {
	Service   payments.Service
	Providers *payments.Registry
	Guard     *payments.EventGuard
}

// NewPayments registers the hosted gateway and, when credentials exist, Square.
func (s *Services) NewPayments(ctx context.Context) (*Payments, error) {
	cfg := s.params.Config
	logg := s.params.Logger

	hosted, err := payments.NewHostedProvider(payments.HostedConfig{
		GatewayURL: cfg.Payments.HostedGatewayURL,
		MerchantID: cfg.Payments.HostedMerchantID,
		Secret:     cfg.Payments.HostedSecret,
		ReturnURL:  cfg.Payments.ReturnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("hosted provider: %w", err)
	}
	providers := []payments.Provider{hosted}

	if cfg.Square.Enabled() {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		provider, err := payments.NewSquareProvider(client)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}

	registry, err := payments.NewRegistry(providers...)
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}

	svc, err := payments.NewService(payments.ServiceParams{
		Tx:        s.params.DB,
		Repo:      payments.NewRepository(s.params.DB.DB()),
		Providers: registry,
		Locker:    s.Locker,
		Orders:    s.Orders,
		Escrow:    s.Escrow,
		Notifier:  s.Notifier,
		Metrics:   s.params.Metrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	out := &Payments{Service: svc, Providers: registry}
	if s.params.Redis != nil {
		guard, err := payments.NewEventGuard(s.params.Redis, cfg.Payments.WebhookEventTTL)
		if err != nil {
			return nil, fmt.Errorf("webhook event guard: %w", err)
		}
		out.Guard = guard
	}
	return out, nil
}
