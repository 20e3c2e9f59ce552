// Package config loads the server configuration with viper: defaults, then an
// optional YAML file, then PRESENCE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// PRESENCE_SESSION_INACTIVITY_TIMEOUT=45s.
const EnvPrefix = "PRESENCE"

type AppConfig struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Session     SessionConfig `mapstructure:"session"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	WSPort         int      `mapstructure:"ws_port"`    // 0 disables WebSocket; equal to Port shares the port
	AdminPort      int      `mapstructure:"admin_port"` // 0 disables the admin listener
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type SessionConfig struct {
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	EchoBroadcast     bool          `mapstructure:"echo_broadcast"`
	MaxUsernameLength int           `mapstructure:"max_username_length"`
	MaxMessageLength  int           `mapstructure:"max_message_length"`
	OutboundQueue     int           `mapstructure:"outbound_queue"`
	RequestRate       float64       `mapstructure:"request_rate"` // requests per second, 0 disables
	RequestBurst      int           `mapstructure:"request_burst"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c *AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Load reads the configuration. path names an optional YAML file; an empty
// path skips the file. The result is not validated; callers apply their
// command-line overrides first and then call Validate.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	return &cfg, nil
}
