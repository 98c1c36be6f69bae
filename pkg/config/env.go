package config

// EnvPrefix is the envconfig prefix shared by every variable below.
const EnvPrefix = "TRADEPOST"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv    = "TRADEPOST_APP_ENV"
	EnvPort      = "TRADEPOST_APP_PORT"
	EnvLogLevel  = "TRADEPOST_LOG_LEVEL"
	EnvLogFormat = "TRADEPOST_LOG_FORMAT"

	EnvDBDSN    = "TRADEPOST_DB_DSN"
	EnvDBDriver = "TRADEPOST_DB_DRIVER"
	EnvDBHost   = "TRADEPOST_DB_HOST"
	EnvDBUser   = "TRADEPOST_DB_USER"
	EnvDBName   = "TRADEPOST_DB_NAME"

	EnvRedisURL = "TRADEPOST_REDIS_URL"

	EnvJWTSecret  = "TRADEPOST_JWT_SECRET"
	EnvJWTIssuer  = "TRADEPOST_JWT_ISSUER"
	EnvJWTExpMins = "TRADEPOST_JWT_EXPIRATION_MINUTES"

	EnvMinOfferPercent    = "TRADEPOST_MIN_OFFER_PERCENT"
	EnvOfferTTL           = "TRADEPOST_OFFER_TTL"
	EnvEscrowHoldDays     = "TRADEPOST_ESCROW_HOLD_DAYS"
	EnvFallbackCommission = "TRADEPOST_FALLBACK_COMMISSION_PERCENT"

	EnvHostedSecret      = "TRADEPOST_HOSTED_SECRET"
	EnvSquareAccessToken = "TRADEPOST_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID  = "TRADEPOST_SQUARE_LOCATION_ID"
	EnvPubSubEventsTopic = "TRADEPOST_PUBSUB_EVENTS_TOPIC"
	EnvOutboxMaxAttempts = "TRADEPOST_OUTBOX_MAX_ATTEMPTS"
	EnvCronInterval      = "TRADEPOST_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
