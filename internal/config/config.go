// Package config loads the gateway configuration from a YAML file with
// environment-variable overrides for the values that change per deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "10s" parse directly.
type Duration time.Duration

// UnmarshalYAML parses either a Go duration string or raw nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("config: bad duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var asInt int64
	if err := value.Decode(&asInt); err != nil {
		return fmt.Errorf("config: bad duration node: %w", err)
	}
	*d = Duration(asInt)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServiceAddr is a static host:port entry in the fallback table used when
// the live registry cannot resolve a service.
type ServiceAddr struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Breaker tunes the per-service circuit breakers.
type Breaker struct {
	Window                   Duration `yaml:"window"`
	Buckets                  int      `yaml:"buckets"`
	VolumeThreshold          int      `yaml:"volume_threshold"`
	ErrorThresholdPercentage float64  `yaml:"error_threshold_percentage"`
	ResetTimeout             Duration `yaml:"reset_timeout"`
	CallTimeout              Duration `yaml:"call_timeout"`
}

// Trade tunes the saga's business rules.
type Trade struct {
	FeeRate     string `yaml:"fee_rate"`      // e.g. "0.001"
	MinTradeUSD string `yaml:"min_trade_usd"` // e.g. "5"
}

// Config is the api-gateway configuration.
type Config struct {
	ListenAddr  string   `yaml:"listen_addr"`
	ConsulAddr  string   `yaml:"consul_addr"`
	RegistryTTL Duration `yaml:"registry_ttl"`
	SagaLogPath string   `yaml:"saga_log_path"`

	Breaker Breaker `yaml:"breaker"`
	Trade   Trade   `yaml:"trade"`

	// Fallback maps a logical service name to a static address, consulted
	// when the registry query fails or returns no healthy instance.
	Fallback map[string]ServiceAddr `yaml:"fallback"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:  ":8080",
		RegistryTTL: Duration(30 * time.Second),
		Breaker: Breaker{
			Window:                   Duration(10 * time.Second),
			Buckets:                  10,
			VolumeThreshold:          10,
			ErrorThresholdPercentage: 50,
			ResetTimeout:             Duration(30 * time.Second),
			CallTimeout:              Duration(5 * time.Second),
		},
		Trade: Trade{
			FeeRate:     "0.001",
			MinTradeUSD: "5",
		},
		Fallback: map[string]ServiceAddr{
			"user-service":         {Host: "127.0.0.1", Port: 8081},
			"market-service":       {Host: "127.0.0.1", Port: 8082},
			"portfolio-service":    {Host: "127.0.0.1", Port: 8083},
			"trade-service":        {Host: "127.0.0.1", Port: 8084},
			"notification-service": {Host: "127.0.0.1", Port: 8085},
		},
	}
}

// Load reads the YAML file at path, layered over Default. Env vars
// GATEWAY_ADDR and CONSUL_ADDR override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if v := os.Getenv("GATEWAY_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CONSUL_ADDR"); v != "" {
		cfg.ConsulAddr = v
	}
	if v := os.Getenv("SAGA_LOG_PATH"); v != "" {
		cfg.SagaLogPath = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Breaker.Buckets <= 0 {
		return fmt.Errorf("config: breaker.buckets must be positive")
	}
	if c.Breaker.ErrorThresholdPercentage <= 0 || c.Breaker.ErrorThresholdPercentage > 100 {
		return fmt.Errorf("config: breaker.error_threshold_percentage must be in (0,100]")
	}
	if c.RegistryTTL <= 0 {
		return fmt.Errorf("config: registry_ttl must be positive")
	}
	return nil
}
