package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                   string        `mapstructure:"ENV"`
	Port                  string        `mapstructure:"PORT"`
	APIBaseURL            string        `mapstructure:"API_BASE_URL"`
	RequestTimeout        time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RefreshInterval       time.Duration `mapstructure:"REFRESH_INTERVAL"`
	SessionFile           string        `mapstructure:"SESSION_FILE"`
	DraftFile             string        `mapstructure:"DRAFT_FILE"`
	StorageEncryptionKey  string        `mapstructure:"STORAGE_ENCRYPTION_KEY"`
	CardImageMaxBytes     int64         `mapstructure:"CARD_IMAGE_MAX_BYTES"`
	CardImageMaxDimension int           `mapstructure:"CARD_IMAGE_MAX_DIMENSION"`
	BodyLimit             string        `mapstructure:"BODY_LIMIT"`
	UploadBodyLimit       string        `mapstructure:"UPLOAD_BODY_LIMIT"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
	LogLevel              string        `mapstructure:"LOG_LEVEL"`
}

var keys = []string{
	"ENV", "PORT", "API_BASE_URL", "REQUEST_TIMEOUT", "REFRESH_INTERVAL",
	"SESSION_FILE", "DRAFT_FILE", "STORAGE_ENCRYPTION_KEY",
	"CARD_IMAGE_MAX_BYTES", "CARD_IMAGE_MAX_DIMENSION", "BODY_LIMIT",
	"UPLOAD_BODY_LIMIT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"LOG_LEVEL",
}

// Load reads configuration from a .env file in the working directory, if
// present, and the environment. The environment wins.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("REFRESH_INTERVAL", "5m")
	v.SetDefault("CARD_IMAGE_MAX_BYTES", 5<<20)
	v.SetDefault("CARD_IMAGE_MAX_DIMENSION", 1600)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_BODY_LIMIT", "12M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("LOG_LEVEL", "info")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")

	if cfg.SessionFile == "" {
		cfg.SessionFile = defaultPath("session.json")
	}
	if cfg.DraftFile == "" {
		cfg.DraftFile = defaultPath("draft.yaml")
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultPath places name under the user's config directory.
func defaultPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "smhs-intake", name)
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production the
// storage key is required; when set it must be 64 hex characters.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	if c.IsProduction() && u.Scheme != "https" {
		return fmt.Errorf("API_BASE_URL must use https in production")
	}

	if c.IsProduction() && c.StorageEncryptionKey == "" {
		return fmt.Errorf("STORAGE_ENCRYPTION_KEY is required in production")
	}
	if c.StorageEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.StorageEncryptionKey)
		if err != nil {
			return fmt.Errorf("STORAGE_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("STORAGE_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.CardImageMaxBytes <= 0 || c.CardImageMaxDimension <= 0 {
		return fmt.Errorf("CARD_IMAGE_MAX_BYTES and CARD_IMAGE_MAX_DIMENSION must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}
