// Package config provides the configuration for a shopsync run.
//
// The configuration is organized into logical sections:
//   - Shopify: store URL, API version and the credential entry to authenticate with
//   - Sync: which destinations the passes write to and how passes are scheduled
//   - Sink: the tabular destination (Google Sheets, or a CSV grid on disk, GCS or S3)
//   - Secrets: where the Shopify credential is read from
//   - Reliability: retries, failure policy, rate limiting, circuit breaking
//   - Timeouts: per-request and whole-run deadlines
//   - Logging / Observability: zap, Prometheus and OpenTelemetry settings
//   - Vendors: variant ID to vendor name fallback table
//
// Example usage:
//
//	cfg, err := config.Load("shopsync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Sync.ContinueOnError = true
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ultimatecoffee/shopsync/pkg/logger"
)

// Failure policies for pages that could not be fetched or decoded
const (
	// FailurePolicySoft ends pagination on a failed page and keeps the
	// records accumulated so far
	FailurePolicySoft = "soft"
	// FailurePolicyStrict returns the failure to the caller
	FailurePolicyStrict = "strict"
)

// Sink types
const (
	SinkSheets = "sheets"
	SinkCSV    = "csv"
	SinkGCS    = "gcs"
	SinkS3     = "s3"
)

// Secret providers
const (
	SecretsEnv = "env"
	SecretsGCP = "gcp"
)

// Config is the complete shopsync configuration
type Config struct {
	Shopify       ShopifyConfig       `mapstructure:"shopify" yaml:"shopify"`
	Sync          SyncConfig          `mapstructure:"sync" yaml:"sync"`
	Sink          SinkConfig          `mapstructure:"sink" yaml:"sink"`
	Secrets       SecretsConfig       `mapstructure:"secrets" yaml:"secrets"`
	Reliability   ReliabilityConfig   `mapstructure:"reliability" yaml:"reliability"`
	Timeouts      TimeoutConfig       `mapstructure:"timeouts" yaml:"timeouts"`
	Logging       logger.Config       `mapstructure:"logging" yaml:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`

	// Vendors maps a line item's variant ID to the vendor name used when the
	// item carries no vendor of its own
	Vendors map[string]string `mapstructure:"vendors" yaml:"vendors"`
}

// ShopifyConfig identifies the store and the credential used to call it
type ShopifyConfig struct {
	// BaseURL is the store origin, e.g. https://example.myshopify.com
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// APIVersion is the dated Admin API version, e.g. 2020-10
	APIVersion string `mapstructure:"api_version" yaml:"api_version"`
	// CredentialKey names the credential store entry holding "key:password"
	CredentialKey string `mapstructure:"credential_key" yaml:"credential_key"`
	// PageSize is sent as the limit parameter (Shopify caps it at 250)
	PageSize  int    `mapstructure:"page_size" yaml:"page_size"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// SyncConfig controls the two sync passes
type SyncConfig struct {
	CustomersDestination string `mapstructure:"customers_destination" yaml:"customers_destination"`
	OrdersDestination    string `mapstructure:"orders_destination" yaml:"orders_destination"`
	OrderStatus          string `mapstructure:"order_status" yaml:"order_status"`
	FinancialStatus      string `mapstructure:"financial_status" yaml:"financial_status"`
	// ContinueOnError runs the remaining passes after one fails and reports
	// all failures together
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error"`
	// ParallelPasses runs the customer and order passes concurrently
	ParallelPasses bool `mapstructure:"parallel_passes" yaml:"parallel_passes"`
	// Interval between runs in serve mode
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// SinkConfig selects and configures the tabular destination
type SinkConfig struct {
	Type         string `mapstructure:"type" yaml:"type"`
	WriteHeaders bool   `mapstructure:"write_headers" yaml:"write_headers"`

	// Google Sheets
	SpreadsheetID    string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	CredentialsFile  string `mapstructure:"credentials_file" yaml:"credentials_file"`
	ValueInputOption string `mapstructure:"value_input_option" yaml:"value_input_option"`

	// CSV grids (csv, gcs, s3)
	Directory   string `mapstructure:"directory" yaml:"directory"`
	Bucket      string `mapstructure:"bucket" yaml:"bucket"`
	Prefix      string `mapstructure:"prefix" yaml:"prefix"`
	Region      string `mapstructure:"region" yaml:"region"`
	Compression string `mapstructure:"compression" yaml:"compression"`
}

// SecretsConfig selects the credential store
type SecretsConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	// EnvPrefix is prepended to the credential key for the env provider
	EnvPrefix  string `mapstructure:"env_prefix" yaml:"env_prefix"`
	GCPProject string `mapstructure:"gcp_project" yaml:"gcp_project"`
	Version    string `mapstructure:"version" yaml:"version"`
}

// ReliabilityConfig contains retry and failure handling settings
type ReliabilityConfig struct {
	// RetryAttempts is the total number of attempts per page (1 disables retries)
	RetryAttempts   int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	RetryMultiplier float64       `mapstructure:"retry_multiplier" yaml:"retry_multiplier"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay"`
	// FailurePolicy is "soft" or "strict"
	FailurePolicy string `mapstructure:"failure_policy" yaml:"failure_policy"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec  float64 `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	RateBurst        int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	CircuitBreaker   bool    `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
	FailureThreshold int     `mapstructure:"failure_threshold" yaml:"failure_threshold"`
}

// TimeoutConfig contains timeout settings
type TimeoutConfig struct {
	// Request bounds one HTTP round trip
	Request time.Duration `mapstructure:"request" yaml:"request"`
	// Connection bounds dialing and the TLS handshake
	Connection time.Duration `mapstructure:"connection" yaml:"connection"`
	// Run bounds a whole sync run (0 = no deadline)
	Run time.Duration `mapstructure:"run" yaml:"run"`
}

// ObservabilityConfig contains metrics and tracing settings
type ObservabilityConfig struct {
	MetricsAddr       string  `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	PushGateway       string  `mapstructure:"push_gateway" yaml:"push_gateway"`
	Tracing           bool    `mapstructure:"tracing" yaml:"tracing"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// Default returns a configuration with production defaults. The store URL
// and spreadsheet ID have no sensible default and must be supplied.
func Default() *Config {
	return &Config{
		Shopify: ShopifyConfig{
			APIVersion:    "2020-10",
			CredentialKey: "SHOPIFY",
			PageSize:      250,
			UserAgent:     "shopsync/1.0",
		},
		Sync: SyncConfig{
			CustomersDestination: "Customers",
			OrdersDestination:    "Order Items",
			OrderStatus:          "any",
			FinancialStatus:      "paid",
			Interval:             time.Hour,
		},
		Sink: SinkConfig{
			Type:             SinkSheets,
			ValueInputOption: "USER_ENTERED",
			Directory:        ".",
		},
		Secrets: SecretsConfig{
			Provider: SecretsEnv,
			Version:  "latest",
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:    3,
			RetryDelay:       time.Second,
			RetryMultiplier:  2.0,
			MaxRetryDelay:    30 * time.Second,
			FailurePolicy:    FailurePolicySoft,
			RateLimitPerSec:  2,
			RateBurst:        40,
			CircuitBreaker:   true,
			FailureThreshold: 5,
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
			Run:        30 * time.Minute,
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "console",
		},
		Observability: ObservabilityConfig{
			TracingSampleRate: 1.0,
		},
		Vendors: map[string]string{
			"35137261633699": "Olympia Coffee",
		},
	}
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Shopify.BaseURL == "" {
		return fmt.Errorf("shopify.base_url is required")
	}
	u, err := url.Parse(c.Shopify.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("shopify.base_url must be an absolute URL, got %q", c.Shopify.BaseURL)
	}
	if c.Shopify.APIVersion == "" {
		return fmt.Errorf("shopify.api_version is required")
	}
	if c.Shopify.CredentialKey == "" {
		return fmt.Errorf("shopify.credential_key is required")
	}
	if c.Shopify.PageSize <= 0 || c.Shopify.PageSize > 250 {
		return fmt.Errorf("shopify.page_size must be between 1 and 250")
	}
	if c.Sync.CustomersDestination == "" || c.Sync.OrdersDestination == "" {
		return fmt.Errorf("sync destinations must be named")
	}
	if c.Reliability.RetryAttempts < 1 {
		return fmt.Errorf("reliability.retry_attempts must be at least 1")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("reliability.rate_limit_per_sec cannot be negative")
	}
	switch c.Reliability.FailurePolicy {
	case FailurePolicySoft, FailurePolicyStrict:
	default:
		return fmt.Errorf("reliability.failure_policy must be %q or %q", FailurePolicySoft, FailurePolicyStrict)
	}
	switch c.Secrets.Provider {
	case SecretsEnv:
	case SecretsGCP:
		if c.Secrets.GCPProject == "" {
			return fmt.Errorf("secrets.gcp_project is required for the gcp provider")
		}
	default:
		return fmt.Errorf("unknown secrets.provider %q", c.Secrets.Provider)
	}
	return c.Sink.validate()
}

func (s *SinkConfig) validate() error {
	switch strings.ToLower(s.Type) {
	case SinkSheets:
		if s.SpreadsheetID == "" {
			return fmt.Errorf("sink.spreadsheet_id is required for the sheets sink")
		}
	case SinkCSV:
		if s.Directory == "" {
			return fmt.Errorf("sink.directory is required for the csv sink")
		}
	case SinkGCS, SinkS3:
		if s.Bucket == "" {
			return fmt.Errorf("sink.bucket is required for the %s sink", s.Type)
		}
	default:
		return fmt.Errorf("unknown sink.type %q", s.Type)
	}
	switch s.Compression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("sink.compression must be one of none, gzip, zstd")
	}
	return nil
}

// Strict reports whether page failures are returned to the caller
func (r *ReliabilityConfig) Strict() bool {
	return r.FailurePolicy == FailurePolicyStrict
}
