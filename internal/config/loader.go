package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoUnits is returned when the configuration declares no monitored units.
var ErrNoUnits = errors.New("no units configured")

// LoadConfig loads, defaults and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, then applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.APIPort == "" {
		cfg.Server.APIPort = "8088"
	}
	if cfg.Push.Endpoint == "" {
		cfg.Push.Endpoint = "http://localhost:3001/api/alertzy"
	}
	if cfg.Push.Timeout == 0 {
		cfg.Push.Timeout = 10 * time.Second
	}
	if cfg.Push.RatePerSec == 0 {
		cfg.Push.RatePerSec = 5
	}
	if cfg.Push.Burst == 0 {
		cfg.Push.Burst = 10
	}
	if cfg.Push.Cooldown == 0 {
		cfg.Push.Cooldown = 60 * time.Second
	}
	if cfg.Push.CooldownCacheSize == 0 {
		cfg.Push.CooldownCacheSize = 4096
	}
	if cfg.Relay.Listen == "" {
		cfg.Relay.Listen = ":3001"
	}
	if cfg.Relay.UpstreamURL == "" {
		cfg.Relay.UpstreamURL = "https://alertzy.app/send"
	}
	if cfg.Relay.AccountKeyEnv == "" {
		cfg.Relay.AccountKeyEnv = "ALERTZY_KEY"
	}
	if cfg.Relay.Timeout == 0 {
		cfg.Relay.Timeout = 10 * time.Second
	}

	for name, unit := range cfg.Units {
		if unit.Group == "" {
			unit.Group = name
		}
		if unit.SeenCacheSize == 0 {
			unit.SeenCacheSize = 4096
		}
		if unit.Source.Type == SourceMQTT && unit.Source.MQTT.ClientID == "" {
			unit.Source.MQTT.ClientID = "nicuwatch-" + name
		}
		cfg.Units[name] = unit
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if len(cfg.Units) == 0 {
		return ErrNoUnits
	}

	if _, err := url.ParseRequestURI(cfg.Push.Endpoint); err != nil {
		return fmt.Errorf("push.endpoint: %w", err)
	}
	if cfg.Push.RatePerSec < 0 {
		return fmt.Errorf("push.rate_per_sec must be >= 0")
	}
	if cfg.Push.Burst < 0 {
		return fmt.Errorf("push.burst must be >= 0")
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port out of range: %d", cfg.Server.GRPCPort)
	}

	for _, name := range cfg.UnitNames() {
		if err := validateSource(cfg.Units[name].Source); err != nil {
			return fmt.Errorf("unit %s: %w", name, err)
		}
	}
	return nil
}

func validateSource(src SourceConfig) error {
	switch src.Type {
	case SourceWebsocket:
		if src.URL == "" {
			return fmt.Errorf("websocket source: url is required")
		}
		u, err := url.Parse(src.URL)
		if err != nil {
			return fmt.Errorf("websocket source: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("websocket source: url scheme must be 'ws' or 'wss'")
		}
	case SourceMQTT:
		if src.MQTT.Broker == "" {
			return fmt.Errorf("mqtt source: broker is required")
		}
		if src.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt source: qos must be 0, 1 or 2")
		}
	case SourceRedis:
		if src.Redis.Addr == "" {
			return fmt.Errorf("redis source: addr is required")
		}
		if src.Redis.Stream == "" {
			return fmt.Errorf("redis source: stream is required")
		}
	case SourceSimulate:
	case "":
		return fmt.Errorf("source.type is required")
	default:
		return fmt.Errorf("source.type must be 'websocket', 'mqtt', 'redis' or 'simulate', got %q", src.Type)
	}
	return nil
}

// UnitNames returns the configured unit names in sorted order
func (c *Config) UnitNames() []string {
	names := make([]string, 0, len(c.Units))
	for name := range c.Units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
