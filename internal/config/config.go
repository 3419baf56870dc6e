// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// MinHoldInterval is the floor for the quote hold interval. Coinbase
// Advanced Trade allows roughly 30 private requests per second; one quote
// cycle costs three calls plus retries, so anything faster than this churns
// orders beyond the acceptable rate.
const MinHoldInterval = 500 * time.Millisecond

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Trading     TradingConfig     `yaml:"trading"`
	Credentials CredentialsConfig `yaml:"credentials"`
	System      SystemConfig      `yaml:"system"`
	Timing      TimingConfig      `yaml:"timing"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	ProductID   string `yaml:"product_id" validate:"required"`
	WsURL       string `yaml:"ws_url" validate:"required"`
	APIURL      string `yaml:"api_url" validate:"required"`
	JournalPath string `yaml:"journal_path"`
}

// TradingConfig contains quoting parameters. Depth and OrderSize are
// decimal strings so precision survives the YAML round trip.
type TradingConfig struct {
	Depth          string `yaml:"depth" validate:"required,min=0"`
	OrderSize      string `yaml:"order_size"`
	HoldIntervalMs int    `yaml:"hold_interval_ms" validate:"required"`
}

// CredentialsConfig contains the Coinbase Cloud API key material. The
// private key is an EC PEM block, normally injected via ${...} expansion.
type CredentialsConfig struct {
	KeyName    string `yaml:"key_name" validate:"required"`
	PrivateKey string `yaml:"private_key" validate:"required"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel            string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOrphansOnBoot bool   `yaml:"cancel_orphans_on_boot"`
}

// TimingConfig contains timing-related settings; zero values fall back to
// the defaults below.
type TimingConfig struct {
	ReconnectDelayMs   int `yaml:"reconnect_delay_ms"`
	OrderRetryDelayMs  int `yaml:"order_retry_delay_ms"`
	BookPollIntervalMs int `yaml:"book_poll_interval_ms"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.WsURL == "" {
		c.App.WsURL = "wss://advanced-trade-ws.coinbase.com"
	}
	if c.App.APIURL == "" {
		c.App.APIURL = "https://api.coinbase.com"
	}
	if c.App.JournalPath == "" {
		c.App.JournalPath = "orders.db"
	}
	if c.Trading.OrderSize == "" {
		c.Trading.OrderSize = "1"
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Timing.ReconnectDelayMs == 0 {
		c.Timing.ReconnectDelayMs = 1000
	}
	if c.Timing.OrderRetryDelayMs == 0 {
		c.Timing.OrderRetryDelayMs = 1000
	}
	if c.Timing.BookPollIntervalMs == 0 {
		c.Timing.BookPollIntervalMs = 1000
	}
	if c.Telemetry.MetricsPort == 0 {
		c.Telemetry.MetricsPort = 9090
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.App.ProductID == "" {
		errs = append(errs, ValidationError{Field: "app.product_id", Value: c.App.ProductID, Message: "product id is required"}.Error())
	}

	if c.Credentials.KeyName == "" {
		errs = append(errs, ValidationError{Field: "credentials.key_name", Value: "", Message: "API key name is required"}.Error())
	}
	if c.Credentials.PrivateKey == "" {
		errs = append(errs, ValidationError{Field: "credentials.private_key", Value: "", Message: "API private key is required"}.Error())
	}

	if c.Trading.Depth == "" {
		errs = append(errs, ValidationError{Field: "trading.depth", Value: "", Message: "depth is required"}.Error())
	} else if depth, err := decimal.NewFromString(c.Trading.Depth); err != nil {
		errs = append(errs, ValidationError{Field: "trading.depth", Value: c.Trading.Depth, Message: "depth must be a decimal number"}.Error())
	} else if depth.IsNegative() {
		errs = append(errs, ValidationError{Field: "trading.depth", Value: c.Trading.Depth, Message: "depth cannot be less than 0"}.Error())
	}

	if size, err := decimal.NewFromString(c.Trading.OrderSize); err != nil {
		errs = append(errs, ValidationError{Field: "trading.order_size", Value: c.Trading.OrderSize, Message: "order size must be a decimal number"}.Error())
	} else if !size.IsPositive() {
		errs = append(errs, ValidationError{Field: "trading.order_size", Value: c.Trading.OrderSize, Message: "order size must be positive"}.Error())
	}

	if c.HoldInterval() < MinHoldInterval {
		errs = append(errs, ValidationError{
			Field:   "trading.hold_interval_ms",
			Value:   c.Trading.HoldIntervalMs,
			Message: fmt.Sprintf("hold interval must be at least %s", MinHoldInterval),
		}.Error())
	}

	switch strings.ToUpper(c.System.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR", "FATAL":
	default:
		errs = append(errs, ValidationError{Field: "system.log_level", Value: c.System.LogLevel, Message: "invalid log level"}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Depth returns the configured quote depth as a decimal.
func (c *Config) Depth() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Trading.Depth)
	return d
}

// OrderSize returns the configured base order size as a decimal.
func (c *Config) OrderSize() decimal.Decimal {
	s, _ := decimal.NewFromString(c.Trading.OrderSize)
	return s
}

// HoldInterval returns the configured quote hold interval.
func (c *Config) HoldInterval() time.Duration {
	return time.Duration(c.Trading.HoldIntervalMs) * time.Millisecond
}

// ReconnectDelay returns the streaming reconnect delay.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Timing.ReconnectDelayMs) * time.Millisecond
}

// OrderRetryDelay returns the delay between order operation retries.
func (c *Config) OrderRetryDelay() time.Duration {
	return time.Duration(c.Timing.OrderRetryDelayMs) * time.Millisecond
}

// BookPollInterval returns the best-bid-offer polling interval.
func (c *Config) BookPollInterval() time.Duration {
	return time.Duration(c.Timing.BookPollIntervalMs) * time.Millisecond
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}
