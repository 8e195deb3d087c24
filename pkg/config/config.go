package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Cart          CartConfig
	Checkout      CheckoutConfig
	Momo          MomoConfig
	VNPay         VNPayConfig
	Shipping      ShippingConfig
	SMTP          SMTPConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
}

type FeatureFlagsConfig struct {
	// AutoMigrate runs pending migrations on API start in dev environments.
	AutoMigrate bool `envconfig:"BLOOMCART_FEATURE_AUTO_MIGRATE" default:"false"`
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
	Env          string   `envconfig:"BLOOMCART_APP_ENV" required:"true"`
	Port         string   `envconfig:"BLOOMCART_APP_PORT" required:"true"`
	BaseURL      string   `envconfig:"BLOOMCART_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string   `envconfig:"BLOOMCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"BLOOMCART_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"BLOOMCART_APP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BLOOMCART_DB_DSN"`
	Driver string `envconfig:"BLOOMCART_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BLOOMCART_DB_HOST"`
	Port     int    `envconfig:"BLOOMCART_DB_PORT" default:"5432"`
	User     string `envconfig:"BLOOMCART_DB_USER"`
	Password string `envconfig:"BLOOMCART_DB_PASSWORD"`
	Name     string `envconfig:"BLOOMCART_DB_NAME"`
	SSLMode  string `envconfig:"BLOOMCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BLOOMCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BLOOMCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BLOOMCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BLOOMCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BLOOMCART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BLOOMCART_REDIS_ADDR"`
	Password     string        `envconfig:"BLOOMCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"BLOOMCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BLOOMCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BLOOMCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BLOOMCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BLOOMCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BLOOMCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BLOOMCART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BLOOMCART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BLOOMCART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BLOOMCART_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BLOOMCART_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BLOOMCART_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BLOOMCART_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BLOOMCART_ARGON_KEY_LEN" default:"32"`
}

type CartConfig struct {
	TTL time.Duration `envconfig:"BLOOMCART_CART_TTL" default:"72h"`
}

type CheckoutConfig struct {
	// TxTimeout bounds the order placement transaction so row locks are
	// never held open-endedly.
	TxTimeout          time.Duration `envconfig:"BLOOMCART_CHECKOUT_TX_TIMEOUT" default:"5s"`
	DefaultShippingFee int64         `envconfig:"BLOOMCART_CHECKOUT_DEFAULT_SHIPPING_FEE" default:"50000"`
}

type MomoConfig struct {
	Endpoint    string `envconfig:"BLOOMCART_MOMO_ENDPOINT" default:"https://test-payment.momo.vn/v2/gateway/api/create"`
	PartnerCode string `envconfig:"BLOOMCART_MOMO_PARTNER_CODE"`
	AccessKey   string `envconfig:"BLOOMCART_MOMO_ACCESS_KEY"`
	SecretKey   string `envconfig:"BLOOMCART_MOMO_SECRET_KEY"`
	ReturnURL   string `envconfig:"BLOOMCART_MOMO_RETURN_URL"`
	NotifyURL   string `envconfig:"BLOOMCART_MOMO_NOTIFY_URL"`
	RequestType string `envconfig:"BLOOMCART_MOMO_REQUEST_TYPE" default:"captureWallet"`
}

type VNPayConfig struct {
	Endpoint   string `envconfig:"BLOOMCART_VNPAY_ENDPOINT" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	TmnCode    string `envconfig:"BLOOMCART_VNPAY_TMN_CODE"`
	HashSecret string `envconfig:"BLOOMCART_VNPAY_HASH_SECRET"`
	ReturnURL  string `envconfig:"BLOOMCART_VNPAY_RETURN_URL"`
	Version    string `envconfig:"BLOOMCART_VNPAY_VERSION" default:"2.1.0"`
	Locale     string `envconfig:"BLOOMCART_VNPAY_LOCALE" default:"vn"`
}

type ShippingConfig struct {
	BaseURL        string        `envconfig:"BLOOMCART_SHIPPING_BASE_URL" default:"https://online-gateway.ghn.vn/shiip/public-api"`
	Token          string        `envconfig:"BLOOMCART_SHIPPING_TOKEN"`
	ShopID         int           `envconfig:"BLOOMCART_SHIPPING_SHOP_ID"`
	FromDistrictID int           `envconfig:"BLOOMCART_SHIPPING_FROM_DISTRICT_ID" default:"1450"`
	ServiceID      int           `envconfig:"BLOOMCART_SHIPPING_SERVICE_ID" default:"53321"`
	RequestTimeout time.Duration `envconfig:"BLOOMCART_SHIPPING_REQUEST_TIMEOUT" default:"10s"`
	QuoteTTL       time.Duration `envconfig:"BLOOMCART_SHIPPING_QUOTE_TTL" default:"30m"`
}

type SMTPConfig struct {
	Host        string `envconfig:"BLOOMCART_SMTP_HOST"`
	Port        int    `envconfig:"BLOOMCART_SMTP_PORT" default:"587"`
	Username    string `envconfig:"BLOOMCART_SMTP_USERNAME"`
	Password    string `envconfig:"BLOOMCART_SMTP_PASSWORD"`
	DefaultFrom string `envconfig:"BLOOMCART_SMTP_FROM" default:"no-reply@bloomcart.local"`
	ShopName    string `envconfig:"BLOOMCART_SMTP_SHOP_NAME" default:"Bloomcart"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"BLOOMCART_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"BLOOMCART_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"BLOOMCART_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"BLOOMCART_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"BLOOMCART_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"BLOOMCART_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
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
