package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *BotConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Transport.URL == "" {
		return errors.New("transport.url is required")
	}

	if c.Session.MaxReconnects < 1 {
		return errors.New("session.max_reconnects must be >= 1")
	}
	if c.Session.IdentityPoll > c.Session.IdentityWait {
		return fmt.Errorf("session.identity_poll (%s) cannot exceed identity_wait (%s)",
			c.Session.IdentityPoll, c.Session.IdentityWait)
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Dispatch.MaxAttempts < 1 {
		return errors.New("dispatch.max_attempts must be >= 1")
	}

	// SMS settings are optional, but when a key is set the rest must follow.
	if c.SMS.APIKey != "" {
		if c.SMS.Sender == "" {
			return errors.New("sms.sender is required when sms.api_key is set")
		}
		if c.SMS.Recipient == "" {
			return errors.New("sms.recipient is required when sms.api_key is set")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
