package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/opwatcher/internal/broadcast"
	"github.com/vietddude/opwatcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig     `yaml:"server"`
	Logging  LoggingConfig    `yaml:"logging"`
	L1       L1Config         `yaml:"l1"`
	Database postgres.Config  `yaml:"database"`
	Redis    broadcast.Config `yaml:"redis"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// L1Config holds the Optimism L1 endpoint and fetcher parameters.
type L1Config struct {
	RPCURL          string   `yaml:"rpc_url"`
	SystemConfig    string   `yaml:"system_config"`
	BatchSize       uint64   `yaml:"batch_size"`
	TransactionType int      `yaml:"transaction_type"`
	RetryInterval   Duration `yaml:"retry_interval"`
	RetentionPeriod Duration `yaml:"retention_period"`
}

// Duration parses "3m"-style YAML values into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SystemConfigAddress returns the parsed SystemConfig contract address.
func (c L1Config) SystemConfigAddress() common.Address {
	return common.HexToAddress(c.SystemConfig)
}

// Validate enforces the bootstrap-fatal configuration invariants.
func (c *AppConfig) Validate() error {
	if c.L1.RPCURL == "" {
		return fmt.Errorf("l1.rpc_url is required")
	}
	if c.L1.SystemConfig == "" {
		return fmt.Errorf("l1.system_config is required")
	}
	if !common.IsHexAddress(c.L1.SystemConfig) {
		return fmt.Errorf("l1.system_config %q is not a valid address", c.L1.SystemConfig)
	}
	if c.L1.TransactionType <= 0 || c.L1.TransactionType > 0xff {
		return fmt.Errorf("l1.transaction_type must be a single byte, got %d", c.L1.TransactionType)
	}
	return nil
}
