package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "HOMESERVE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "HOMESERVE_APP_ENV"
	EnvPort     = "HOMESERVE_APP_PORT"
	EnvDBDSN    = "HOMESERVE_DB_DSN"
	EnvDBHost   = "HOMESERVE_DB_HOST"
	EnvDBUser   = "HOMESERVE_DB_USER"
	EnvDBName   = "HOMESERVE_DB_NAME"
	EnvRedisURL = "HOMESERVE_REDIS_URL"

	EnvJWTSecret = "HOMESERVE_JWT_SECRET"
	EnvJWTIssuer = "HOMESERVE_JWT_ISSUER"

	EnvGCPProjectID        = "HOMESERVE_GCP_PROJECT_ID"
	EnvPubSubPaymentsTopic = "HOMESERVE_PUBSUB_PAYMENTS_TOPIC"
	EnvPubSubNotifySub     = "HOMESERVE_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvPaymentsProviderTimeout = "HOMESERVE_PAYMENTS_PROVIDER_TIMEOUT"
	EnvPaymentsLockTTL         = "HOMESERVE_PAYMENTS_LOCK_TTL"
	EnvPaymentsProviders       = "HOMESERVE_PAYMENTS_PROVIDERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
