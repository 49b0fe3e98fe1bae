package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultAckTimeout         = 10 * time.Second
	DefaultEventBufferSize    = 1000
	DefaultProfileID          = "default"
	DefaultCredsDir           = "session"
	DefaultMaxReconnects      = 3
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultIdentityWait       = 2 * time.Second
	DefaultIdentityPoll       = 100 * time.Millisecond
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultSendAttempts       = 3
	DefaultSendBaseDelay      = 1 * time.Second
	DefaultSMSBaseURL         = "http://sms.smsnotifygh.com/smsapi"
	DefaultBusinessName       = "Fx Cobra X"
	DefaultHealthPort         = 8080
)

func (c *BotConfig) applyDefaults() {
	// Transport defaults
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.AckTimeout == 0 {
		c.Transport.AckTimeout = DefaultAckTimeout
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultEventBufferSize
	}

	// Session defaults
	if c.Session.ProfileID == "" {
		c.Session.ProfileID = DefaultProfileID
	}
	if c.Session.CredsDir == "" {
		c.Session.CredsDir = DefaultCredsDir
	}
	if c.Session.MaxReconnects == 0 {
		c.Session.MaxReconnects = DefaultMaxReconnects
	}
	if c.Session.ReconnectBaseDelay == 0 {
		c.Session.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Session.ReconnectMaxDelay == 0 {
		c.Session.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Session.IdentityWait == 0 {
		c.Session.IdentityWait = DefaultIdentityWait
	}
	if c.Session.IdentityPoll == 0 {
		c.Session.IdentityPoll = DefaultIdentityPoll
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Dispatcher defaults
	if c.Dispatch.MaxAttempts == 0 {
		c.Dispatch.MaxAttempts = DefaultSendAttempts
	}
	if c.Dispatch.BaseDelay == 0 {
		c.Dispatch.BaseDelay = DefaultSendBaseDelay
	}

	// SMS defaults
	if c.SMS.BaseURL == "" {
		c.SMS.BaseURL = DefaultSMSBaseURL
	}

	// Shop defaults
	if c.Shop.BusinessName == "" {
		c.Shop.BusinessName = DefaultBusinessName
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
