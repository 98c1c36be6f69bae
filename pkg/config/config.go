package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Marketplace  MarketplaceConfig
	Payments     PaymentsConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRADEPOST_APP_ENV" required:"true"`
	Port         string `envconfig:"TRADEPOST_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRADEPOST_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TRADEPOST_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TRADEPOST_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"TRADEPOST_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	out := []string{}
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"TRADEPOST_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRADEPOST_DB_DSN"`
	Driver string `envconfig:"TRADEPOST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRADEPOST_DB_HOST"`
	LegacyPort     int    `envconfig:"TRADEPOST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRADEPOST_DB_USER"`
	LegacyPassword string `envconfig:"TRADEPOST_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRADEPOST_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRADEPOST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRADEPOST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRADEPOST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRADEPOST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADEPOST_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	LockTimeout time.Duration `envconfig:"TRADEPOST_DB_LOCK_TIMEOUT" default:"5s"`
	TxRetries   int           `envconfig:"TRADEPOST_DB_TX_RETRIES" default:"2"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"TRADEPOST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRADEPOST_REDIS_ADDR"`
	Password     string        `envconfig:"TRADEPOST_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRADEPOST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRADEPOST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADEPOST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADEPOST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADEPOST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADEPOST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRADEPOST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRADEPOST_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRADEPOST_JWT_EXPIRATION_MINUTES" required:"true"`
}

type RateLimitConfig struct {
	Window      time.Duration `envconfig:"TRADEPOST_RATE_LIMIT_WINDOW" default:"1m"`
	UserLimit   int           `envconfig:"TRADEPOST_RATE_LIMIT_USER_LIMIT" default:"120"`
	OffersLimit int           `envconfig:"TRADEPOST_RATE_LIMIT_OFFERS_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"TRADEPOST_AUTO_MIGRATE" default:"false"`
	RedisListingLock bool `envconfig:"TRADEPOST_FEATURE_REDIS_LISTING_GUARD" default:"true"`
}

type MarketplaceConfig struct {
	MinOfferPercent       int           `envconfig:"TRADEPOST_MIN_OFFER_PERCENT" default:"50"`
	OfferTTL              time.Duration `envconfig:"TRADEPOST_OFFER_TTL" default:"48h"`
	EscrowHoldDays        int           `envconfig:"TRADEPOST_ESCROW_HOLD_DAYS" default:"7"`
	FallbackCommissionPct string        `envconfig:"TRADEPOST_FALLBACK_COMMISSION_PERCENT" default:"5"`
	Currency              string        `envconfig:"TRADEPOST_CURRENCY" default:"USD"`
	ListingGuardTTL       time.Duration `envconfig:"TRADEPOST_LISTING_GUARD_TTL" default:"10s"`
}

// EscrowHold returns the configured escrow hold window.
func (m MarketplaceConfig) EscrowHold() time.Duration {
	if m.EscrowHoldDays <= 0 {
		return 0
	}
	return time.Duration(m.EscrowHoldDays) * 24 * time.Hour
}

// FallbackRate parses the fallback commission percentage.
func (m MarketplaceConfig) FallbackRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(m.FallbackCommissionPct))
	if err != nil {
		return decimal.NewFromInt(5)
	}
	return rate
}

func (m MarketplaceConfig) validate() error {
	if m.MinOfferPercent < 0 || m.MinOfferPercent > 100 {
		return fmt.Errorf("%s must be between 0 and 100", EnvMinOfferPercent)
	}
	if m.OfferTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvOfferTTL)
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(m.FallbackCommissionPct)); err != nil {
		return fmt.Errorf("%s: %w", EnvFallbackCommission, err)
	}
	return nil
}

type PaymentsConfig struct {
	DefaultProvider  string        `envconfig:"TRADEPOST_PAYMENTS_DEFAULT_PROVIDER" default:"hosted"`
	ReturnURL        string        `envconfig:"TRADEPOST_PAYMENTS_RETURN_URL"`
	HostedGatewayURL string        `envconfig:"TRADEPOST_HOSTED_GATEWAY_URL"`
	HostedMerchantID string        `envconfig:"TRADEPOST_HOSTED_MERCHANT_ID"`
	HostedSecret     string        `envconfig:"TRADEPOST_HOSTED_SECRET"`
	WebhookEventTTL  time.Duration `envconfig:"TRADEPOST_WEBHOOK_EVENT_TTL" default:"720h"`
}

type SquareConfig struct {
	Env                    string `envconfig:"TRADEPOST_SQUARE_ENV" default:"sandbox"`
	AccessToken            string `envconfig:"TRADEPOST_SQUARE_ACCESS_TOKEN"`
	LocationID             string `envconfig:"TRADEPOST_SQUARE_LOCATION_ID"`
	WebhookSignatureKey    string `envconfig:"TRADEPOST_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookNotificationURL string `envconfig:"TRADEPOST_SQUARE_WEBHOOK_NOTIFICATION_URL"`
}

// Enabled reports whether the square provider has credentials.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.LocationID) != ""
}

type GCPConfig struct {
	ProjectID       string `envconfig:"TRADEPOST_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"TRADEPOST_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"TRADEPOST_PUBSUB_EVENTS_TOPIC" default:"tp-marketplace-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"TRADEPOST_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"TRADEPOST_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"TRADEPOST_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"TRADEPOST_OUTBOX_RETENTION" default:"720h"`
	EmitTimeout    time.Duration `envconfig:"TRADEPOST_OUTBOX_EMIT_TIMEOUT" default:"5s"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"TRADEPOST_CRON_INTERVAL" default:"1m"`
	LockTTL    time.Duration `envconfig:"TRADEPOST_CRON_LOCK_TTL" default:"5m"`
	SweepBatch int           `envconfig:"TRADEPOST_CRON_SWEEP_BATCH" default:"200"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
