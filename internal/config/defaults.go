package config

import (
	"time"

	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")

	// Server
	v.SetDefault("server.port", 0)
	v.SetDefault("server.ws_port", 0)
	v.SetDefault("server.admin_port", 0)
	v.SetDefault("server.allowed_origins", []string{})

	// Session
	v.SetDefault("session.inactivity_timeout", 30*time.Second)
	v.SetDefault("session.sweep_interval", time.Second)
	v.SetDefault("session.echo_broadcast", true)
	v.SetDefault("session.max_username_length", 32)
	v.SetDefault("session.max_message_length", 4096)
	v.SetDefault("session.outbound_queue", 256)
	v.SetDefault("session.request_rate", 50.0)
	v.SetDefault("session.request_burst", 100)
	v.SetDefault("session.write_timeout", 10*time.Second)
}
