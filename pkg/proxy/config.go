package proxy

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultHost is the residential proxy gateway host
	DefaultHost = "proxy.smartproxy.net"

	// DefaultPort is the residential proxy gateway port
	DefaultPort = 3120

	// DefaultMaxUses is how many extractions a single session identity
	// serves before it must be retired, even without a failure
	DefaultMaxUses = 150

	// DefaultSessionsPerSecond caps how fast new sessions are minted;
	// residential vendors throttle session creation on their side
	DefaultSessionsPerSecond = 2.0
)

// Config holds the proxy gateway credentials and lease tuning.
type Config struct {
	// Host is the proxy gateway hostname
	Host string
	// Port is the proxy gateway port
	Port int
	// Username is the vendor username; geo area parameters are already
	// embedded in it (e.g. user_area-PE)
	Username string
	// Password is the vendor password
	Password string
	// MaxUses is the per-lease operation cap before forced rotation
	MaxUses int
	// SessionsPerSecond bounds the session-mint rate across all workers
	SessionsPerSecond float64

	// Logger receives session lifecycle events
	Logger *logrus.Logger
}

// NewConfig loads the proxy configuration from the environment.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	port, _ := strconv.Atoi(getEnvOrDefault("PROXY_PORT", strconv.Itoa(DefaultPort)))
	maxUses, _ := strconv.Atoi(getEnvOrDefault("PROXY_SESSION_MAX_USES", strconv.Itoa(DefaultMaxUses)))
	perSecond, _ := strconv.ParseFloat(getEnvOrDefault("PROXY_SESSIONS_PER_SECOND", "2"), 64)

	cfg := &Config{
		Host:              getEnvOrDefault("PROXY_HOST", DefaultHost),
		Port:              port,
		Username:          os.Getenv("PROXY_USERNAME"),
		Password:          os.Getenv("PROXY_PASSWORD"),
		MaxUses:           maxUses,
		SessionsPerSecond: perSecond,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for fatal problems. Missing
// credentials stop the run before any worker starts.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("proxy credentials are required: set PROXY_USERNAME and PROXY_PASSWORD")
	}
	if c.Host == "" {
		return fmt.Errorf("proxy host is required")
	}
	if c.Port < 1 {
		return fmt.Errorf("proxy port must be positive")
	}
	if c.MaxUses < 1 {
		return fmt.Errorf("session max uses must be positive")
	}
	if c.SessionsPerSecond <= 0 {
		return fmt.Errorf("sessions per second must be positive")
	}
	return nil
}

// IsConfigured reports whether credentials are present.
func (c *Config) IsConfigured() bool {
	return c.Username != "" && c.Password != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
