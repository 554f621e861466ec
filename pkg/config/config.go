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
	DB           DBConfig
	Redis        RedisConfig
	Storage      StorageConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	Actions      ActionsConfig
	Sessions     SessionsConfig
	Orders       OrdersConfig
	Analytics    AnalyticsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(cfg.Redis); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether enough connection data is present to dial Redis.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// StorageConfig selects where carts and staging lists are persisted.
type StorageConfig struct {
	Backend       string `envconfig:"STOREFRONT_STORAGE_BACKEND" default:"redis"`
	ChangeChannel string `envconfig:"STOREFRONT_STORAGE_CHANGE_CHANNEL" default:"sf:storage:changes"`
}

func (s StorageConfig) validate(redis RedisConfig) error {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case StorageBackendMemory:
		return nil
	case StorageBackendRedis:
		if !redis.Configured() {
			return fmt.Errorf("%s or %s is required for the redis storage backend", EnvRedisURL, EnvRedisAddr)
		}
		return nil
	}
	return fmt.Errorf("unsupported storage backend %q", s.Backend)
}

// Kind returns the normalized backend name.
func (s StorageConfig) Kind() string {
	return strings.ToLower(strings.TrimSpace(s.Backend))
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" default:"storefront"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CheckoutConfig holds the shipping rule and the checkout-bound route.
type CheckoutConfig struct {
	FreeShippingThreshold string `envconfig:"STOREFRONT_FREE_SHIPPING_THRESHOLD" default:"2500"`
	FlatShippingFee       string `envconfig:"STOREFRONT_FLAT_SHIPPING_FEE" default:"220"`
	Currency              string `envconfig:"STOREFRONT_CURRENCY" default:"BDT"`
	CheckoutPath          string `envconfig:"STOREFRONT_CHECKOUT_PATH" default:"/checkout"`
	OrderStatusPath       string `envconfig:"STOREFRONT_ORDER_STATUS_PATH" default:"/order-status"`
}

// Threshold returns the free-shipping threshold as a decimal.
func (c CheckoutConfig) Threshold() decimal.Decimal {
	return decimal.RequireFromString(c.FreeShippingThreshold)
}

// FlatFee returns the flat shipping fee as a decimal.
func (c CheckoutConfig) FlatFee() decimal.Decimal {
	return decimal.RequireFromString(c.FlatShippingFee)
}

func (c CheckoutConfig) validate() error {
	threshold, err := decimal.NewFromString(c.FreeShippingThreshold)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvFreeShippingThreshold, err)
	}
	fee, err := decimal.NewFromString(c.FlatShippingFee)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvFlatShippingFee, err)
	}
	if threshold.IsNegative() || fee.IsNegative() {
		return fmt.Errorf("shipping threshold and fee must be non-negative")
	}
	return nil
}

// ActionsConfig tunes the click guards of the cart controls.
type ActionsConfig struct {
	Debounce        time.Duration `envconfig:"STOREFRONT_ACTION_DEBOUNCE" default:"1s"`
	Cooldown        time.Duration `envconfig:"STOREFRONT_ACTION_COOLDOWN" default:"300ms"`
	SuccessDuration time.Duration `envconfig:"STOREFRONT_ACTION_SUCCESS_DURATION" default:"2s"`
	Timeout         time.Duration `envconfig:"STOREFRONT_ACTION_TIMEOUT" default:"10s"`
}

// SessionsConfig bounds the per-profile carts and control sessions held in
// process memory.
type SessionsConfig struct {
	IdleTTL       time.Duration `envconfig:"STOREFRONT_SESSION_IDLE_TTL" default:"30m"`
	MaxProfiles   int           `envconfig:"STOREFRONT_SESSION_MAX_PROFILES" default:"10000"`
	SweepInterval time.Duration `envconfig:"STOREFRONT_SESSION_SWEEP_INTERVAL" default:"1m"`
}

type OrdersConfig struct {
	Scope         string        `envconfig:"STOREFRONT_ORDERS_SCOPE" default:"storefront"`
	SubmitTimeout time.Duration `envconfig:"STOREFRONT_ORDERS_SUBMIT_TIMEOUT" default:"15s"`
}

// RateLimitConfig throttles order and review submissions per client IP and profile.
type RateLimitConfig struct {
	OrderWindow        time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_ORDER_WINDOW" default:"10m"`
	OrderIPLimit       int           `envconfig:"STOREFRONT_RATE_LIMIT_ORDER_IP" default:"20"`
	OrderProfileLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_ORDER_PROFILE" default:"5"`
	ReviewWindow       time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_REVIEW_WINDOW" default:"1h"`
	ReviewIPLimit      int           `envconfig:"STOREFRONT_RATE_LIMIT_REVIEW_IP" default:"10"`
	ReviewProfileLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_REVIEW_PROFILE" default:"0"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type AnalyticsConfig struct {
	Sink      string        `envconfig:"STOREFRONT_ANALYTICS_SINK" default:"log"`
	QueueSize int           `envconfig:"STOREFRONT_ANALYTICS_QUEUE_SIZE" default:"256"`
	Workers   int           `envconfig:"STOREFRONT_ANALYTICS_WORKERS" default:"2"`
	Timeout   time.Duration `envconfig:"STOREFRONT_ANALYTICS_TIMEOUT" default:"3s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	AnalyticsTopic string `envconfig:"STOREFRONT_PUBSUB_ANALYTICS_TOPIC" default:"storefront-analytics"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:storefront.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
