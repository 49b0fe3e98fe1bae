package config

import "time"

// BotConfig is the root configuration for a sales bot instance.
type BotConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`
	Database  DBConfig        `yaml:"database"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	SMS       SMSConfig       `yaml:"sms"`
	Shop      ShopConfig      `yaml:"shop"`
	Health    HealthConfig    `yaml:"health"`
}

// InstanceConfig identifies this bot instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// TransportConfig holds chat transport settings.
type TransportConfig struct {
	URL              string        `yaml:"url"`   // WebSocket gateway URL
	Token            string        `yaml:"token"` // Bearer token for the gateway
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"` // Max silence before the connection is stale
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	AckTimeout       time.Duration `yaml:"ack_timeout"` // Wait for a send receipt
	BufferSize       int           `yaml:"buffer_size"` // Event channel buffer
}

// SessionConfig holds connection lifecycle settings.
type SessionConfig struct {
	ProfileID          string        `yaml:"profile_id"` // Keys the persisted credential blob
	CredsDir           string        `yaml:"creds_dir"`
	MaxReconnects      int           `yaml:"max_reconnects"` // Attempt cap before fail-fast
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	IdentityWait       time.Duration `yaml:"identity_wait"` // Bound for identity confirmation after open
	IdentityPoll       time.Duration `yaml:"identity_poll"`
}

// DBConfig holds the PostgreSQL connection for catalog, orders, and currency.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DispatchConfig holds outbound message dispatcher settings.
type DispatchConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"` // Backoff is attempt * base_delay
}

// SMSConfig holds best-effort order notification settings.
// Notifications are disabled when the API key is empty.
type SMSConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Sender    string `yaml:"sender"`
	Recipient string `yaml:"recipient"`
}

// ShopConfig holds customer-facing presentation settings.
type ShopConfig struct {
	BusinessName string `yaml:"business_name"`
}

// HealthConfig holds the liveness endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
