package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr    string `default:"" usage:"Redis address for distributed order locks; empty uses in-process locks" flag:"redis-addr"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	ShippingCost string `default:"5.00" usage:"Flat shipping cost added to every order" flag:"shipping-cost"`

	Kafka     KafkaConfig
	Payment   PaymentConfig
	Sweep     SweepConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// KafkaConfig controls order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses; empty disables event publishing"`
	Topic   string   `default:"checkout.orders" usage:"Topic for order lifecycle events"`
}

// PaymentConfig selects and configures the payment provider.
type PaymentConfig struct {
	Provider          string        `default:"sandbox" usage:"Payment provider: midtrans or sandbox"`
	SessionExpiry     time.Duration `default:"24h" usage:"How long a payment session stays payable" flag:"session-expiry"`
	MidtransServerKey string        `usage:"Midtrans server key" flag:"midtrans-server-key"`
	MidtransBaseURL   string        `default:"https://app.sandbox.midtrans.com" usage:"Midtrans API base URL" flag:"midtrans-base-url"`
	GatewayTimeout    time.Duration `default:"10s" usage:"Timeout for outbound provider calls" flag:"gateway-timeout"`
	SandboxSecret     string        `default:"sandbox-secret" usage:"HMAC secret for the sandbox provider" flag:"sandbox-secret"`
	SandboxRedirect   string        `default:"https://pay.sandbox.localhost" usage:"Redirect base URL for the sandbox provider" flag:"sandbox-redirect"`
}

// SweepConfig controls the payment expiry sweeper.
type SweepConfig struct {
	Interval time.Duration `default:"1m" usage:"How often to sweep expired payment sessions"`
	Batch    int           `default:"100" usage:"Max payments expired per sweep pass"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Payment.Provider == "midtrans" && cfg.Payment.MidtransServerKey == "" {
		return nil, errors.New("midtrans provider requires CHECKOUT_PAYMENT_MIDTRANS_SERVER_KEY")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
