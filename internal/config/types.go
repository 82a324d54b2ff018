package config

import "time"

// Source types
const (
	SourceWebsocket = "websocket"
	SourceMQTT      = "mqtt"
	SourceRedis     = "redis"
	SourceSimulate  = "simulate"
)

// Config represents the complete nicuwatch configuration
type Config struct {
	Server ServerConfig          `yaml:"server"`
	Push   PushConfig            `yaml:"push"`
	Relay  RelayConfig           `yaml:"relay"`
	Units  map[string]UnitConfig `yaml:"units"`
}

// ServerConfig contains listener settings
type ServerConfig struct {
	APIPort  string `yaml:"api_port"`
	GRPCPort int    `yaml:"grpc_port"` // 0 disables the health service
}

// PushConfig defines how alerts are pushed to the notification endpoint
type PushConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Timeout           time.Duration `yaml:"timeout"`
	RatePerSec        float64       `yaml:"rate_per_sec"`
	Burst             int           `yaml:"burst"`
	Cooldown          time.Duration `yaml:"cooldown"`
	CooldownCacheSize int           `yaml:"cooldown_cache_size"`
}

// RelayConfig defines the credential-injecting push relay
type RelayConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Listen        string        `yaml:"listen"`
	UpstreamURL   string        `yaml:"upstream_url"`
	AccountKeyEnv string        `yaml:"account_key_env"`
	Timeout       time.Duration `yaml:"timeout"`
}

// UnitConfig defines one monitored incubator
type UnitConfig struct {
	Description   string       `yaml:"description,omitempty"`
	Group         string       `yaml:"group,omitempty"`
	SeenCacheSize int          `yaml:"seen_cache_size,omitempty"`
	Source        SourceConfig `yaml:"source"`
}

// SourceConfig selects and configures the event source of a unit
type SourceConfig struct {
	Type     string         `yaml:"type"` // websocket, mqtt, redis or simulate
	URL      string         `yaml:"url,omitempty"`
	MQTT     MQTTConfig     `yaml:"mqtt,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
	Simulate SimulateConfig `yaml:"simulate,omitempty"`
}

// MQTTConfig defines the broker connection of an MQTT source
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	QoS         byte   `yaml:"qos,omitempty"`
}

// RedisConfig defines the stream read by a Redis source
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Stream      string        `yaml:"stream"`
	PasswordEnv string        `yaml:"password_env,omitempty"`
	DB          int           `yaml:"db,omitempty"`
	StartID     string        `yaml:"start_id,omitempty"` // "$" (new entries only) by default
	Block       time.Duration `yaml:"block,omitempty"`
}

// SimulateConfig defines the cadence of the built-in simulator
type SimulateConfig struct {
	EmergencyEvery time.Duration `yaml:"emergency_every,omitempty"`
	CryingEvery    time.Duration `yaml:"crying_every,omitempty"`
	Seed           int64         `yaml:"seed,omitempty"`
}
