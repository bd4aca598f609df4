// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Trust modes for inbound Frame interactions.
const (
	TrustAttested = "attested"
	TrustHub      = "hub"
	TrustTrusted  = "trusted"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	PublicURL   string // Base URL the Frame client calls back on.
	FrontendURL string // Merchant frontend, target of hand-off links.
	AppEnv      string
	LogLevel    string
	DBPath      string
	CORSOrigins []string

	Session   SessionConfig
	Trust     TrustConfig
	Payments  PaymentsConfig
	Mail      MailConfig
	Images    ImagesConfig
	RateLimit RateLimitConfig
}

// SessionConfig controls wizard session caching.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MarkerTTL     time.Duration
}

// TrustConfig selects how inbound interactions are authenticated.
type TrustConfig struct {
	Mode              string
	NeynarAPIURL      string
	NeynarAPIKey      string
	HubAddr           string
	ValidationTimeout time.Duration
}

// PaymentsConfig holds chain and price oracle settings.
type PaymentsConfig struct {
	ChainID       string
	PriceAPIURL   string
	PriceCacheTTL time.Duration
	FixedETHUSD   string // Dev-only fixed ETH price; bypasses the price API when set.
	ExplorerURL   string
}

// MailConfig holds outbound mail settings.
type MailConfig struct {
	SendGridAPIURL string
	SendGridAPIKey string
	From           string
}

// ImagesConfig holds image asset locations.
type ImagesConfig struct {
	AssetBaseURL    string
	ImageServiceURL string
}

// RateLimitConfig controls per-client throttling of Frame interactions.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv reads configuration from environment variables without validating it.
func FromEnv() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		AppEnv:      getEnv("APP_ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBPath:      getEnv("DB_PATH", "./data/shopframes.db"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
			MarkerTTL:     getEnvDuration("SESSION_MARKER_TTL", 24*time.Hour),
		},
		Trust: TrustConfig{
			Mode:              strings.ToLower(getEnv("FRAME_TRUST", TrustAttested)),
			NeynarAPIURL:      strings.TrimRight(getEnv("NEYNAR_API_URL", "https://api.neynar.com"), "/"),
			NeynarAPIKey:      getEnv("NEYNAR_API_KEY", ""),
			HubAddr:           getEnv("HUB_GRPC_ADDR", ""),
			ValidationTimeout: getEnvDuration("VALIDATION_TIMEOUT", 5*time.Second),
		},
		Payments: PaymentsConfig{
			ChainID:       getEnv("CHAIN_ID", "eip155:8453"),
			PriceAPIURL:   getEnv("PRICE_API_URL", "https://api.coinbase.com/v2/prices/ETH-USD/spot"),
			PriceCacheTTL: getEnvDuration("PRICE_CACHE_TTL", time.Minute),
			FixedETHUSD:   getEnv("FIXED_ETH_USD", ""),
			ExplorerURL:   strings.TrimRight(getEnv("EXPLORER_URL", "https://basescan.org"), "/"),
		},
		Mail: MailConfig{
			SendGridAPIURL: getEnv("SENDGRID_API_URL", "https://api.sendgrid.com/v3/mail/send"),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			From:           getEnv("MAIL_FROM", "orders@shopframes.local"),
		},
		Images: ImagesConfig{
			AssetBaseURL:    strings.TrimRight(getEnv("ASSET_BASE_URL", ""), "/"),
			ImageServiceURL: strings.TrimRight(getEnv("IMAGE_SERVICE_URL", ""), "/"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 20),
		},
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if _, err := url.ParseRequestURI(c.PublicURL); err != nil {
		return fmt.Errorf("PUBLIC_URL must be an absolute URL: %w", err)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.Trust.ValidationTimeout <= 0 {
		return fmt.Errorf("VALIDATION_TIMEOUT must be > 0")
	}
	switch c.Trust.Mode {
	case TrustAttested:
		if c.Trust.NeynarAPIKey == "" {
			return fmt.Errorf("NEYNAR_API_KEY is required when FRAME_TRUST=%s", TrustAttested)
		}
	case TrustHub:
		if c.Trust.HubAddr == "" {
			return fmt.Errorf("HUB_GRPC_ADDR is required when FRAME_TRUST=%s", TrustHub)
		}
	case TrustTrusted:
		if !c.IsDevelopment() {
			return fmt.Errorf("FRAME_TRUST=%s is only allowed when APP_ENV=development", TrustTrusted)
		}
	default:
		return fmt.Errorf("unknown FRAME_TRUST %q", c.Trust.Mode)
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DebugLogging reports whether LOG_LEVEL or LOG_DEBUG asks for debug output.
func (c *Config) DebugLogging() bool {
	return strings.EqualFold(c.LogLevel, "debug") || getEnvBool("LOG_DEBUG", false)
}
