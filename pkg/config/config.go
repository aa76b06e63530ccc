package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Product   ProductConfig
	Inventory InventoryConfig
	Payment   PaymentConfig
	Tracking  TrackingConfig
	Notify    NotifyConfig
	Cron      CronConfig
	Flags     FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SATSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"SATSHOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SATSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SATSHOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SATSHOP_DB_DSN"`
	Driver string `envconfig:"SATSHOP_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SATSHOP_DB_HOST"`
	Port     int    `envconfig:"SATSHOP_DB_PORT" default:"5432"`
	User     string `envconfig:"SATSHOP_DB_USER"`
	Password string `envconfig:"SATSHOP_DB_PASSWORD"`
	Name     string `envconfig:"SATSHOP_DB_NAME"`
	SSLMode  string `envconfig:"SATSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SATSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SATSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SATSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SATSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SATSHOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SATSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"SATSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"SATSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SATSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SATSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SATSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SATSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SATSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SATSHOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SATSHOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SATSHOP_JWT_EXPIRATION_MINUTES" default:"720"`
}

type RateLimitConfig struct {
	CheckoutWindow  time.Duration `envconfig:"SATSHOP_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit int           `envconfig:"SATSHOP_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"5"`
}

type ProductConfig struct {
	SKU            string `envconfig:"SATSHOP_PRODUCT_SKU" default:"SATSHOP-1"`
	UnitPrice      int    `envconfig:"SATSHOP_PRODUCT_UNIT_PRICE" required:"true"`
	FiatCurrency   string `envconfig:"SATSHOP_PRODUCT_FIAT_CURRENCY" default:"USD"`
	DiscountTiers  string `envconfig:"SATSHOP_PRODUCT_DISCOUNT_TIERS" default:""`
	MaxQtyPerOrder int    `envconfig:"SATSHOP_PRODUCT_MAX_QTY" default:"100"`
}

type InventoryConfig struct {
	LowStockThreshold int `envconfig:"SATSHOP_INVENTORY_LOW_STOCK_THRESHOLD" default:"10"`
	AdjustMaxAttempts int `envconfig:"SATSHOP_INVENTORY_ADJUST_MAX_ATTEMPTS" default:"3"`
}

type PaymentConfig struct {
	BaseURL         string        `envconfig:"SATSHOP_PAYMENT_BASE_URL" required:"true"`
	APIToken        string        `envconfig:"SATSHOP_PAYMENT_API_TOKEN"`
	WebhookSecret   string        `envconfig:"SATSHOP_PAYMENT_WEBHOOK_SECRET"`
	MinCryptoAmount string        `envconfig:"SATSHOP_PAYMENT_MIN_CRYPTO_AMOUNT" default:"0.0001"`
	Timeout         time.Duration `envconfig:"SATSHOP_PAYMENT_TIMEOUT" default:"15s"`
}

// MinAmount parses the configured minimum crypto transaction amount.
func (p PaymentConfig) MinAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(p.MinCryptoAmount)
}

type TrackingConfig struct {
	BaseURL  string        `envconfig:"SATSHOP_TRACKING_BASE_URL"`
	APIToken string        `envconfig:"SATSHOP_TRACKING_API_TOKEN"`
	Timeout  time.Duration `envconfig:"SATSHOP_TRACKING_TIMEOUT" default:"15s"`
}

type NotifyConfig struct {
	EmailEndpoint string        `envconfig:"SATSHOP_NOTIFY_EMAIL_ENDPOINT"`
	EmailAPIKey   string        `envconfig:"SATSHOP_NOTIFY_EMAIL_API_KEY"`
	EmailFrom     string        `envconfig:"SATSHOP_NOTIFY_EMAIL_FROM"`
	SMSEndpoint   string        `envconfig:"SATSHOP_NOTIFY_SMS_ENDPOINT"`
	SMSAPIKey     string        `envconfig:"SATSHOP_NOTIFY_SMS_API_KEY"`
	AdminEmail    string        `envconfig:"SATSHOP_NOTIFY_ADMIN_EMAIL"`
	AdminPhone    string        `envconfig:"SATSHOP_NOTIFY_ADMIN_PHONE"`
	Timeout       time.Duration `envconfig:"SATSHOP_NOTIFY_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Secret     string        `envconfig:"SATSHOP_CRON_SECRET"`
	PendingTTL time.Duration `envconfig:"SATSHOP_CRON_PENDING_TTL" default:"24h"`
	Interval   time.Duration `envconfig:"SATSHOP_CRON_INTERVAL" default:"1h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SATSHOP_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for _, pair := range []struct{ env, value string }{
		{"SATSHOP_DB_HOST", db.Host},
		{"SATSHOP_DB_USER", db.User},
		{"SATSHOP_DB_NAME", db.Name},
	} {
		if pair.value == "" {
			missing = append(missing, pair.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either SATSHOP_DB_DSN or %s are required", strings.Join(missing, ", "))
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
