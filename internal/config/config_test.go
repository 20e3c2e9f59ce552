package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/presence-chat/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 30*time.Second, cfg.Session.InactivityTimeout)
	assert.Equal(t, time.Second, cfg.Session.SweepInterval)
	assert.True(t, cfg.Session.EchoBroadcast)
	assert.Equal(t, 256, cfg.Session.OutboundQueue)
	assert.Equal(t, 50.0, cfg.Session.RequestRate)
	assert.Equal(t, 0, cfg.Server.Port)

	// The port comes from the command line.
	assert.Error(t, cfg.Validate())
	cfg.Server.Port = 8080
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: development
server:
  port: 9000
  ws_port: 9001
  allowed_origins: ["example.com", "*.example.org"]
session:
  inactivity_timeout: 45s
  sweep_interval: 500ms
  echo_broadcast: false
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 9001, cfg.Server.WSPort)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 45*time.Second, cfg.Session.InactivityTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.SweepInterval)
	assert.False(t, cfg.Session.EchoBroadcast)
	assert.Equal(t, 100, cfg.Session.RequestBurst)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PRESENCE_SERVER_PORT", "7000")
	t.Setenv("PRESENCE_SESSION_INACTIVITY_TIMEOUT", "2m")
	t.Setenv("PRESENCE_SESSION_ECHO_BROADCAST", "false")
	t.Setenv("PRESENCE_SESSION_REQUEST_RATE", "0")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Session.InactivityTimeout)
	assert.False(t, cfg.Session.EchoBroadcast)
	assert.Equal(t, 0.0, cfg.Session.RequestRate)
}

func TestValidate(t *testing.T) {
	valid := func() *config.AppConfig {
		cfg, err := config.Load("")
		require.NoError(t, err)
		cfg.Server.Port = 8080
		return cfg
	}

	tests := []struct {
		name   string
		modify func(c *config.AppConfig)
	}{
		{"port too high", func(c *config.AppConfig) { c.Server.Port = 70000 }},
		{"negative ws port", func(c *config.AppConfig) { c.Server.WSPort = -1 }},
		{"admin port too high", func(c *config.AppConfig) { c.Server.AdminPort = 65536 }},
		{"admin port equals port", func(c *config.AppConfig) { c.Server.AdminPort = 8080 }},
		{"zero timeout", func(c *config.AppConfig) { c.Session.InactivityTimeout = 0 }},
		{"zero interval", func(c *config.AppConfig) { c.Session.SweepInterval = 0 }},
		{"interval not below timeout", func(c *config.AppConfig) { c.Session.SweepInterval = c.Session.InactivityTimeout }},
		{"zero username length", func(c *config.AppConfig) { c.Session.MaxUsernameLength = 0 }},
		{"zero message length", func(c *config.AppConfig) { c.Session.MaxMessageLength = 0 }},
		{"empty queue", func(c *config.AppConfig) { c.Session.OutboundQueue = 0 }},
		{"negative rate", func(c *config.AppConfig) { c.Session.RequestRate = -1 }},
		{"zero burst with rate", func(c *config.AppConfig) { c.Session.RequestBurst = 0 }},
		{"negative write timeout", func(c *config.AppConfig) { c.Session.WriteTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("shared websocket port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.WSPort = cfg.Server.Port
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero burst without rate", func(t *testing.T) {
		cfg := valid()
		cfg.Session.RequestRate = 0
		cfg.Session.RequestBurst = 0
		assert.NoError(t, cfg.Validate())
	})
}
