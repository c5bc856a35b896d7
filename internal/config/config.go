package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string `env:"PORT" envDefault:"8000"`
	DatabaseURL string `env:"DATABASE_URL"`
	// DBMaxConns bounds the pgx pool; idle connections are evicted after DBMaxConnIdleTime.
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`

	JWTSecret     string `env:"JWT_SECRET"`
	JWTAlgorithm  string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"cdms-backend"`
	JWTTTLMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
	JWTTTL        time.Duration

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	SupabaseURL       string        `env:"SUPABASE_URL"`
	SupabaseKey       string        `env:"SUPABASE_KEY"`
	AnalyticsPageSize int           `env:"ANALYTICS_PAGE_SIZE" envDefault:"1000"`
	AnalyticsCacheTTL time.Duration `env:"ANALYTICS_CACHE_TTL" envDefault:"300s"`
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"30s"`

	FirebaseProjectID        string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCertsURL         string `env:"FIREBASE_CERTS_URL" envDefault:"https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"`
	AllowUnverifiedFederated bool   `env:"AUTH_ALLOW_UNVERIFIED_FEDERATED" envDefault:"true"`
	AuthRateLimitPerMinute   int    `env:"AUTH_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	// TrustedProxies are IPs or CIDRs whose X-Forwarded-For is believed. Empty means none.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	LLMAPIKey       string `env:"LLM_API_KEY"`
	LLMModel        string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMResponsesURL string `env:"LLM_RESPONSES_URL" envDefault:"https://api.openai.com/v1/responses"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Port = fallback(cfg.Port, "8000")
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.JWTAlgorithm = strings.ToUpper(fallback(cfg.JWTAlgorithm, "HS256"))
	cfg.JWTIssuer = fallback(cfg.JWTIssuer, "cdms-backend")
	cfg.CORSOrigins = parseCSV(strings.Join(cfg.CORSOrigins, ","))
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.SupabaseKey = strings.TrimSpace(cfg.SupabaseKey)
	cfg.FirebaseProjectID = strings.TrimSpace(cfg.FirebaseProjectID)
	cfg.LLMAPIKey = strings.TrimSpace(cfg.LLMAPIKey)
	cfg.TrustedProxies = parseList(strings.Join(cfg.TrustedProxies, ","))

	if cfg.JWTTTLMinutes > 0 {
		cfg.JWTTTL = time.Duration(cfg.JWTTTLMinutes) * time.Minute
	} else {
		cfg.JWTTTL = 1440 * time.Minute
	}
	if cfg.AnalyticsPageSize <= 0 {
		cfg.AnalyticsPageSize = 1000
	}
	if cfg.AnalyticsCacheTTL <= 0 {
		cfg.AnalyticsCacheTTL = 300 * time.Second
	}
	if cfg.DBMaxConns <= 0 {
		cfg.DBMaxConns = 10
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if _, ok := jwt.GetSigningMethod(cfg.JWTAlgorithm).(*jwt.SigningMethodHMAC); !ok {
		return Config{}, fmt.Errorf("JWT_ALGORITHM %q is not a supported HMAC algorithm", cfg.JWTAlgorithm)
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// AnalyticsConfigured reports whether the Supabase analytics store can be reached.
func (c Config) AnalyticsConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != "" && c.SupabaseURL != "YOUR_SUPABASE_PROJECT_URL_HERE"
}

// AIConfigured reports whether an LLM key is present.
func (c Config) AIConfigured() bool {
	return c.LLMAPIKey != ""
}

// FederatedConfigured reports whether Firebase ID tokens can be verified.
func (c Config) FederatedConfigured() bool {
	return c.FirebaseProjectID != ""
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	out := parseList(input)
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func parseList(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
