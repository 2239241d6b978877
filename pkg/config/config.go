package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Payments     PaymentsConfig
	Square       SquareConfig
	Midtrans     MidtransConfig
	Reconcile    ReconcileConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	// sqlite skips row locks, so settlement would not serialize across replicas
	if cfg.App.IsProd() && strings.EqualFold(cfg.DB.Driver, "sqlite") {
		return nil, fmt.Errorf("HOMESERVE_DB_DRIVER=sqlite is not allowed in %s", AppEnvProd)
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"HOMESERVE_APP_ENV" required:"true"`
	Port         string   `envconfig:"HOMESERVE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"HOMESERVE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"HOMESERVE_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"HOMESERVE_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"HOMESERVE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HOMESERVE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HOMESERVE_DB_DSN"`
	Driver string `envconfig:"HOMESERVE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HOMESERVE_DB_HOST"`
	LegacyPort     int    `envconfig:"HOMESERVE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HOMESERVE_DB_USER"`
	LegacyPassword string `envconfig:"HOMESERVE_DB_PASSWORD"`
	LegacyName     string `envconfig:"HOMESERVE_DB_NAME"`
	LegacySSLMode  string `envconfig:"HOMESERVE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HOMESERVE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HOMESERVE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HOMESERVE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HOMESERVE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"HOMESERVE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HOMESERVE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HOMESERVE_REDIS_ADDR"`
	Password     string        `envconfig:"HOMESERVE_REDIS_PASSWORD"`
	DB           int           `envconfig:"HOMESERVE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HOMESERVE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HOMESERVE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HOMESERVE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HOMESERVE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HOMESERVE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"HOMESERVE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"HOMESERVE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"HOMESERVE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HOMESERVE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"HOMESERVE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HOMESERVE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"HOMESERVE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HOMESERVE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic            string `envconfig:"HOMESERVE_PUBSUB_PAYMENTS_TOPIC" default:"hs-payment-events"`
	NotificationSubscription string `envconfig:"HOMESERVE_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"HOMESERVE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"HOMESERVE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"HOMESERVE_OUTBOX_MAX_ATTEMPTS" default:"10"`

	PublishTimeout time.Duration `envconfig:"HOMESERVE_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

// PaymentsConfig controls settlement behaviour shared by every provider.
type PaymentsConfig struct {
	ProviderTimeout time.Duration `envconfig:"HOMESERVE_PAYMENTS_PROVIDER_TIMEOUT" default:"15s"`
	LockTTL         time.Duration `envconfig:"HOMESERVE_PAYMENTS_LOCK_TTL" default:"30s"`
	LockWait        time.Duration `envconfig:"HOMESERVE_PAYMENTS_LOCK_WAIT" default:"5s"`
	Currency        string        `envconfig:"HOMESERVE_PAYMENTS_CURRENCY" default:"USD"`
	Providers       []string      `envconfig:"HOMESERVE_PAYMENTS_PROVIDERS" default:"device_wallet,square,midtrans"`
	RateLimitWindow time.Duration `envconfig:"HOMESERVE_PAYMENTS_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimit       int           `envconfig:"HOMESERVE_PAYMENTS_RATE_LIMIT" default:"30"`
	ReceiptIssuer   string        `envconfig:"HOMESERVE_PAYMENTS_RECEIPT_ISSUER" default:"HomeServe"`
	IdempotencyTTL  time.Duration `envconfig:"HOMESERVE_PAYMENTS_IDEMPOTENCY_TTL" default:"168h"`
}

func (p PaymentsConfig) validate() error {
	if p.ProviderTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsProviderTimeout)
	}
	if p.LockTTL < p.ProviderTimeout {
		return fmt.Errorf("%s must be at least %s", EnvPaymentsLockTTL, EnvPaymentsProviderTimeout)
	}
	if len(p.Providers) == 0 {
		return fmt.Errorf("%s requires at least one provider", EnvPaymentsProviders)
	}
	return nil
}

type SquareConfig struct {
	AccessToken string `envconfig:"HOMESERVE_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"HOMESERVE_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"HOMESERVE_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Simulated reports whether the Square provider should run without network calls.
func (s SquareConfig) Simulated() bool {
	return strings.TrimSpace(s.AccessToken) == ""
}

type MidtransConfig struct {
	ServerKey string `envconfig:"HOMESERVE_MIDTRANS_SERVER_KEY"`
	Env       string `envconfig:"HOMESERVE_MIDTRANS_ENV" default:"sandbox"`
}

// Production reports whether Midtrans calls target the production endpoint.
func (m MidtransConfig) Production() bool {
	return strings.EqualFold(strings.TrimSpace(m.Env), "production")
}

// Simulated reports whether the Midtrans provider should run without network calls.
func (m MidtransConfig) Simulated() bool {
	return strings.TrimSpace(m.ServerKey) == ""
}

type ReconcileConfig struct {
	Interval time.Duration `envconfig:"HOMESERVE_RECONCILE_INTERVAL" default:"15m"`
	Lookback time.Duration `envconfig:"HOMESERVE_RECONCILE_LOOKBACK" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
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
