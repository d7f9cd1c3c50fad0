package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Orders       OrdersConfig
	RateLimit    RateLimitConfig
	Maintenance  MaintenanceConfig
}

// Load reads the MARKETPLACE_* environment and checks the cross-field rules
// envconfig tags cannot express.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for _, check := range []func() error{cfg.DB.resolveDSN, cfg.Orders.validate} {
		if err := check(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MARKETPLACE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"MARKETPLACE_CORS_ORIGINS" default:"http://localhost:3000"`
}

// IsDev gates dev-only conveniences such as auto-migration.
func (a AppConfig) IsDev() bool { return strings.EqualFold(a.Env, AppEnvDev) }

// DBConfig takes either a full DSN or its parts; parts are only read when
// DSN is empty.
type DBConfig struct {
	DSN string `envconfig:"MARKETPLACE_DB_DSN"`

	Host     string `envconfig:"MARKETPLACE_DB_HOST"`
	Port     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	User     string `envconfig:"MARKETPLACE_DB_USER"`
	Password string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	Name     string `envconfig:"MARKETPLACE_DB_NAME"`
	SSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxTimeout bounds every unit of work opened through Client.WithTx.
	TxTimeout time.Duration `envconfig:"MARKETPLACE_DB_TX_TIMEOUT" default:"30s"`
	SlowQuery time.Duration `envconfig:"MARKETPLACE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

// GCPConfig authenticates Google clients. Without explicit credentials the
// client libraries fall back to Application Default Credentials.
type GCPConfig struct {
	ProjectID       string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MARKETPLACE_GCP_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"MARKETPLACE_GCP_CREDENTIALS_FILE"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" default:"marketplace-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"MARKETPLACE_STRIPE_API_KEY"`
	Secret     string `envconfig:"MARKETPLACE_STRIPE_SECRET"`
	Env        string `envconfig:"MARKETPLACE_STRIPE_ENV" default:"test"`
	Currency   string `envconfig:"MARKETPLACE_STRIPE_CURRENCY" default:"usd"`
	Country    string `envconfig:"MARKETPLACE_STRIPE_ACCOUNT_COUNTRY" default:"US"`
	SuccessURL string `envconfig:"MARKETPLACE_STRIPE_SUCCESS_URL" default:"https://marketplace.local/checkout/success"`
	CancelURL  string `envconfig:"MARKETPLACE_STRIPE_CANCEL_URL" default:"https://marketplace.local/checkout/cancel"`
}

// Environment lowercases Env; an unset value means test mode.
func (s StripeConfig) Environment() string {
	if env := strings.ToLower(strings.TrimSpace(s.Env)); env != "" {
		return env
	}
	return "test"
}

type SendgridConfig struct {
	APIKey      string `envconfig:"MARKETPLACE_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"MARKETPLACE_SENDGRID_FROM_EMAIL" default:"orders@marketplace.local"`
	FromName    string `envconfig:"MARKETPLACE_SENDGRID_FROM_NAME" default:"Marketplace"`
}

// RateLimitConfig throttles order placement per buyer.
type RateLimitConfig struct {
	PlaceOrderLimit  int           `envconfig:"MARKETPLACE_RATE_LIMIT_PLACE_ORDER" default:"10"`
	PlaceOrderWindow time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_PLACE_ORDER_WINDOW" default:"1m"`
}

// OrdersConfig carries the tunables of the order lifecycle.
type OrdersConfig struct {
	CommissionBPS   int           `envconfig:"MARKETPLACE_ORDERS_COMMISSION_BPS" default:"1000"`
	TotalEpsilon    string        `envconfig:"MARKETPLACE_ORDERS_TOTAL_EPSILON" default:"0.01"`
	RetryAttempts   int           `envconfig:"MARKETPLACE_ORDERS_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay  time.Duration `envconfig:"MARKETPLACE_ORDERS_RETRY_BASE_DELAY" default:"1s"`
	AdminEmails     []string      `envconfig:"MARKETPLACE_ORDERS_ADMIN_EMAILS"`
	DispatchTimeout time.Duration `envconfig:"MARKETPLACE_ORDERS_DISPATCH_TIMEOUT" default:"30s"`
}

// MaintenanceConfig drives the scheduled cleanup worker.
type MaintenanceConfig struct {
	Interval                  time.Duration `envconfig:"MARKETPLACE_MAINTENANCE_INTERVAL" default:"1h"`
	LockTTL                   time.Duration `envconfig:"MARKETPLACE_MAINTENANCE_LOCK_TTL" default:"55m"`
	OutboxRetentionDays       int           `envconfig:"MARKETPLACE_MAINTENANCE_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"MARKETPLACE_MAINTENANCE_NOTIFICATION_RETENTION_DAYS" default:"30"`
	UnpaidOrderTTL            time.Duration `envconfig:"MARKETPLACE_MAINTENANCE_UNPAID_ORDER_TTL" default:"48h"`
	UnpaidOrderBatchSize      int           `envconfig:"MARKETPLACE_MAINTENANCE_UNPAID_ORDER_BATCH" default:"100"`
}

func (o OrdersConfig) validate() error {
	if o.CommissionBPS < 0 || o.CommissionBPS > 10000 {
		return fmt.Errorf("%s must be between 0 and 10000", EnvOrdersCommissionBPS)
	}
	if o.RetryAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvOrdersRetryAttempts)
	}
	return nil
}

func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}

	parts := []struct{ env, value string }{
		{EnvDBHost, db.Host},
		{EnvDBUser, db.User},
		{EnvDBName, db.Name},
	}
	var missing []string
	for _, p := range parts {
		if strings.TrimSpace(p.value) == "" {
			missing = append(missing, p.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("set %s, or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   "/" + db.Name,
	}
	if db.Password == "" {
		dsn.User = url.User(db.User)
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
