package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (RETAIL_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (RETAIL_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Outbox      OutboxConfig
	SMS         SMSConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// OutboxConfig controls the outbox polling worker.
type OutboxConfig struct {
	PollInterval time.Duration `default:"30s" usage:"Outbox poll interval" flag:"outbox-poll-interval"`
	BatchSize    int           `default:"50"  usage:"Max entries claimed per poll" flag:"outbox-batch-size"`
	MaxRetries   int           `default:"3"   usage:"Delivery attempts before an entry is failed" flag:"outbox-max-retries"`
	BaseDelay    time.Duration `default:"1m"  usage:"Base retry backoff, multiplied by the attempt number" flag:"outbox-base-delay"`
}

// SMSConfig configures the SMS provider client. With an empty URL the worker
// logs messages instead of sending them.
type SMSConfig struct {
	URL        string        `default:"" usage:"SMS provider endpoint; empty enables dry-run logging" flag:"sms-url"`
	APIKey     string        `default:"" usage:"SMS provider API key" flag:"sms-api-key"`
	SenderName string        `default:"RETAIL" usage:"SMS sender name" flag:"sms-sender"`
	Timeout    time.Duration `default:"10s" usage:"SMS provider request timeout" flag:"sms-timeout"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RETAIL",
		Files:     []string{"config.yaml", "/etc/retail/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set RETAIL_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's RETAIL_-prefixed configuration.
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
