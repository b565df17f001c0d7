package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shopsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	t.Setenv("STORE_HOST", "coffee.myshopify.com")
	path := writeConfig(t, `
shopify:
  base_url: https://${STORE_HOST}
  api_version: 2023-01
sink:
  type: csv
  directory: /tmp/out
reliability:
  failure_policy: strict
  retry_delay: 250ms
vendors:
  "111": Roaster One
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://coffee.myshopify.com", cfg.Shopify.BaseURL)
	assert.Equal(t, "2023-01", cfg.Shopify.APIVersion)
	assert.Equal(t, 250, cfg.Shopify.PageSize, "unset keys keep their defaults")
	assert.Equal(t, "SHOPIFY", cfg.Shopify.CredentialKey)
	assert.Equal(t, SinkCSV, cfg.Sink.Type)
	assert.Equal(t, "/tmp/out", cfg.Sink.Directory)
	assert.Equal(t, FailurePolicyStrict, cfg.Reliability.FailurePolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.Reliability.RetryDelay)
	assert.Equal(t, 30*time.Minute, cfg.Timeouts.Run)
	assert.Equal(t, map[string]string{"111": "Roaster One"}, cfg.Vendors)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SHOPSYNC_SHOPIFY_BASE_URL", "https://env.myshopify.com")
	t.Setenv("SHOPSYNC_SYNC_CONTINUE_ON_ERROR", "true")
	t.Setenv("SHOPSYNC_TIMEOUTS_REQUEST", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.myshopify.com", cfg.Shopify.BaseURL)
	assert.True(t, cfg.Sync.ContinueOnError)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Request)
	assert.Equal(t, "Olympia Coffee", cfg.Vendors["35137261633699"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Shopify.BaseURL = "https://example.myshopify.com"
	cfg.Sink.SpreadsheetID = "sheet-id"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Shopify, loaded.Shopify)
	assert.Equal(t, cfg.Sync, loaded.Sync)
	assert.Equal(t, cfg.Sink, loaded.Sink)
	assert.Equal(t, cfg.Reliability, loaded.Reliability)
	assert.Equal(t, cfg.Timeouts, loaded.Timeouts)
	assert.Equal(t, cfg.Vendors, loaded.Vendors)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Shopify.BaseURL = "https://example.myshopify.com"
		cfg.Sink.SpreadsheetID = "sheet-id"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "relative base url", mutate: func(c *Config) { c.Shopify.BaseURL = "example.com" }, wantErr: true},
		{name: "page size too large", mutate: func(c *Config) { c.Shopify.PageSize = 500 }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.Reliability.RetryAttempts = 0 }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.Reliability.FailurePolicy = "retry" }, wantErr: true},
		{name: "gcp secrets without project", mutate: func(c *Config) { c.Secrets.Provider = SecretsGCP }, wantErr: true},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Sink.Type = SinkGCS }, wantErr: true},
		{name: "s3 with bucket", mutate: func(c *Config) { c.Sink.Type = SinkS3; c.Sink.Bucket = "reports" }},
		{name: "bad compression", mutate: func(c *Config) { c.Sink.Compression = "lz4" }, wantErr: true},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink.Type = "xlsx" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
