package osiptel

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultBaseURL is the public phone-line lookup service
	DefaultBaseURL = "https://checatuslineas.osiptel.gob.pe"

	// DefaultRequestTimeout bounds one HTTP round trip through a
	// residential proxy, which can be very slow
	DefaultRequestTimeout = 45 * time.Second

	// DefaultUserAgent is sent on every request
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// Config holds the lookup client settings.
type Config struct {
	// BaseURL is the lookup service root
	BaseURL string
	// RequestTimeout bounds each HTTP request
	RequestTimeout time.Duration
	// UserAgent is the browser identity presented to the service
	UserAgent string

	// Logger receives request-level debug output
	Logger *logrus.Logger
}

// NewConfig loads the client configuration from the environment.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:        getEnvOrDefault("OSIPTEL_BASE_URL", DefaultBaseURL),
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      getEnvOrDefault("OSIPTEL_USER_AGENT", DefaultUserAgent),
	}
	if v, err := time.ParseDuration(getEnvOrDefault("OSIPTEL_REQUEST_TIMEOUT", "")); err == nil && v > 0 {
		cfg.RequestTimeout = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
