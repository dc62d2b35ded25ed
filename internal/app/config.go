package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/cartloom/promo-engine/internal/domain/discount"
)

// Config is everything the server needs to boot. Values come from YAML
// files, PROMO_-prefixed environment variables, or flags; unset fields keep
// their struct-tag defaults.
type Config struct {
	Addr             string `default:"0.0.0.0:8080" usage:"listen address for the API server"`
	DatabaseURL      string `usage:"PostgreSQL URL (PROMO_DATABASE_URL, falls back to DATABASE_URL)" flag:"database-url"`
	DatabaseMaxConns int32  `default:"0" usage:"pool ceiling, 0 keeps the pgx default" flag:"database-max-conns"`
	APIKeyPepper     string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	RateLimit        RateLimitConfig
	CORS             CORSConfig
	Stacking         StackingConfig
	Graceful         GracefulConfig
}

// RateLimitConfig bounds each client's request rate.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"requests allowed per window"`
	Window time.Duration `default:"1m"  usage:"refill window"`
}

// CORSConfig shapes the Access-Control response headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"allow cookies and auth headers cross-origin" flag:"cors-credentials"`
}

// StackingConfig is the process-wide stacking policy. It is loaded once and
// injected into the calculation pipeline, never mutated at runtime.
type StackingConfig struct {
	AllowPercentage bool `default:"false" usage:"let percentage discounts stack" flag:"stack-percentage"`
	AllowFixed      bool `default:"false" usage:"let fixed amount discounts stack" flag:"stack-fixed"`
	MaxDiscounts    int  `default:"0" usage:"ceiling on stacked discounts per order, 0 = unlimited" flag:"max-stacked"`
}

// Policy converts the loaded knobs into the engine's policy value.
func (c StackingConfig) Policy() discount.StackingPolicy {
	return discount.StackingPolicy{
		AllowPercentageStacking: c.AllowPercentage,
		AllowFixedStacking:      c.AllowFixed,
		MaxStackedDiscounts:     c.MaxDiscounts,
	}
}

// GracefulConfig paces the shutdown sequence.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"drain period after readiness drops" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"hard cap on the whole shutdown" flag:"shutdown-timeout"`
}

// LoadConfig assembles the configuration and verifies the parts that have
// no usable default.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PROMO",
		Files:     []string{"config.yaml", "/etc/promo/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	cfg.adoptPlatformEnv()
	if cfg.DatabaseURL == "" {
		return nil, errors.New("no database URL: set PROMO_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// adoptPlatformEnv picks up the unprefixed variables that hosting platforms
// inject (DATABASE_URL, PORT) when the prefixed configuration left them
// unset.
func (c *Config) adoptPlatformEnv() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
