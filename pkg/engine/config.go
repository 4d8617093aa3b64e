package engine

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultWorkerCount is the concurrent worker pool size
	DefaultWorkerCount = 12

	// DefaultMinTaskDelay and DefaultMaxTaskDelay bound the randomized
	// sleep between tasks (not between retries), breaking up any uniform
	// request cadence
	DefaultMinTaskDelay = 1 * time.Second
	DefaultMaxTaskDelay = 2 * time.Second

	// DefaultCheckpointEvery is how many results pass between progress
	// snapshots
	DefaultCheckpointEvery = 25

	// DefaultShutdownGrace is how long in-flight attempts may keep running
	// after a stop signal before they are forcibly cancelled
	DefaultShutdownGrace = 15 * time.Second
)

// Config holds the engine's tuning parameters.
type Config struct {
	// WorkerCount is the number of concurrent workers
	WorkerCount int
	// Retry is the backoff policy applied to failed attempts
	Retry RetryPolicy
	// MinTaskDelay and MaxTaskDelay bound the random inter-task sleep
	MinTaskDelay time.Duration
	MaxTaskDelay time.Duration
	// CheckpointEvery is the progress save cadence, in results
	CheckpointEvery int
	// ShutdownGrace bounds how long in-flight attempts survive a stop
	// signal
	ShutdownGrace time.Duration

	// Logger receives engine lifecycle and progress events
	Logger *logrus.Logger
}

// NewConfig loads the engine configuration from the environment with
// defaults for everything unset.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	workers, _ := strconv.Atoi(getEnvOrDefault("WORKERS", strconv.Itoa(DefaultWorkerCount)))
	maxAttempts, _ := strconv.Atoi(getEnvOrDefault("MAX_RETRIES", strconv.Itoa(DefaultMaxAttempts)))
	checkpoint, _ := strconv.Atoi(getEnvOrDefault("CHECKPOINT_EVERY", strconv.Itoa(DefaultCheckpointEvery)))

	retry := DefaultRetryPolicy()
	retry.MaxAttempts = maxAttempts
	if v, err := time.ParseDuration(getEnvOrDefault("RETRY_BASE_DELAY", "5s")); err == nil {
		retry.BaseDelay = v
	}
	if v, err := time.ParseDuration(getEnvOrDefault("RETRY_MAX_DELAY", "30s")); err == nil {
		retry.MaxDelay = v
	}
	if v, err := strconv.ParseFloat(getEnvOrDefault("RETRY_MULTIPLIER", "2"), 64); err == nil {
		retry.Multiplier = v
	}

	cfg := &Config{
		WorkerCount:     workers,
		Retry:           retry,
		MinTaskDelay:    DefaultMinTaskDelay,
		MaxTaskDelay:    DefaultMaxTaskDelay,
		CheckpointEvery: checkpoint,
		ShutdownGrace:   DefaultShutdownGrace,
	}
	if v, err := time.ParseDuration(getEnvOrDefault("MIN_TASK_DELAY", "")); err == nil && v > 0 {
		cfg.MinTaskDelay = v
	}
	if v, err := time.ParseDuration(getEnvOrDefault("MAX_TASK_DELAY", "")); err == nil && v > 0 {
		cfg.MaxTaskDelay = v
	}
	if v, err := time.ParseDuration(getEnvOrDefault("SHUTDOWN_GRACE", "")); err == nil && v > 0 {
		cfg.ShutdownGrace = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 < base <= max")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be >= 1")
	}
	if c.MinTaskDelay < 0 || c.MaxTaskDelay < c.MinTaskDelay {
		return fmt.Errorf("task delay range must satisfy 0 <= min <= max")
	}
	if c.CheckpointEvery < 1 {
		return fmt.Errorf("checkpoint cadence must be positive")
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdown grace must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
