package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./data/deployman.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "http://localhost:8080", cfg.Jenkins.URL)
	assert.Equal(t, 30*time.Second, cfg.Jenkins.Timeout)
	assert.Empty(t, cfg.Events.SubscriptionsFile)
	assert.False(t, cfg.Messaging.Enabled)
	assert.Equal(t, 1, cfg.Messaging.MaxMessages)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  write_timeout: 60s
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"

jenkins:
  url: "http://jenkins:8080"
  username: "deployman"
  api_token: "t0ken"
  timeout: 10s

events:
  subscriptions_file: "/etc/deployman/subscriptions.yaml"

messaging:
  enabled: true
  connection_string: "Endpoint=sb://test/"
  max_messages: 5
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "http://jenkins:8080", cfg.Jenkins.URL)
	assert.Equal(t, "deployman", cfg.Jenkins.Username)
	assert.Equal(t, "t0ken", cfg.Jenkins.APIToken)
	assert.Equal(t, 10*time.Second, cfg.Jenkins.Timeout)
	assert.Equal(t, "/etc/deployman/subscriptions.yaml", cfg.Events.SubscriptionsFile)
	assert.True(t, cfg.Messaging.Enabled)
	assert.Equal(t, "Endpoint=sb://test/", cfg.Messaging.ConnectionString)
	assert.Equal(t, 5, cfg.Messaging.MaxMessages)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("DEPLOYMAN_SERVER_HOST", "192.168.1.1")
	t.Setenv("DEPLOYMAN_SERVER_PORT", "3000")
	t.Setenv("DEPLOYMAN_DATABASE_DSN", "/custom/path.db")
	t.Setenv("DEPLOYMAN_JENKINS_API_TOKEN", "secret")
	t.Setenv("DEPLOYMAN_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "secret", cfg.Jenkins.APIToken)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err) // Should not error, just use defaults

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_JSONFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_TextFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "invalid",
			Format: "json",
		},
	}

	// Should fall back to info level, not panic
	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
	}

	assert.Equal(t, "localhost:8090", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"DEPLOYMAN_SERVER_HOST",
		"DEPLOYMAN_SERVER_PORT",
		"DEPLOYMAN_DATABASE_DSN",
		"DEPLOYMAN_LOG_LEVEL",
		"DEPLOYMAN_LOG_FORMAT",
		"DEPLOYMAN_JENKINS_URL",
		"DEPLOYMAN_JENKINS_API_TOKEN",
		"DEPLOYMAN_MESSAGING_ENABLED",
		"DEPLOYMAN_MESSAGING_CONNECTION_STRING",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
