package config

import (
	"errors"
	"fmt"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.WSPort < 0 || c.Server.WSPort > 65535 {
		return fmt.Errorf("invalid websocket port %d", c.Server.WSPort)
	}
	if c.Server.AdminPort < 0 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("invalid admin port %d", c.Server.AdminPort)
	}
	if c.Server.AdminPort != 0 && (c.Server.AdminPort == c.Server.Port || c.Server.AdminPort == c.Server.WSPort) {
		return errors.New("admin port must differ from the other ports")
	}

	s := c.Session
	if s.InactivityTimeout <= 0 {
		return errors.New("inactivity timeout must be positive")
	}
	if s.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if s.SweepInterval >= s.InactivityTimeout {
		return errors.New("sweep interval should be less than inactivity timeout")
	}
	if s.MaxUsernameLength < 1 {
		return errors.New("max username length must be positive")
	}
	if s.MaxMessageLength < 1 {
		return errors.New("max message length must be positive")
	}
	if s.OutboundQueue < 1 {
		return errors.New("outbound queue must hold at least one message")
	}
	if s.RequestRate < 0 {
		return errors.New("request rate must not be negative")
	}
	if s.RequestRate > 0 && s.RequestBurst < 1 {
		return errors.New("request burst must be at least 1 when rate limiting is enabled")
	}
	if s.WriteTimeout < 0 {
		return errors.New("write timeout must not be negative")
	}

	return nil
}
