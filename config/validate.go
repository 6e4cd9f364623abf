package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the service cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	switch cfg.Indexer.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("indexer: unknown driver %q", cfg.Indexer.Driver)
	}
	if cfg.Indexer.Driver == DriverPostgres && strings.TrimSpace(cfg.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: postgres requires DSN")
	}
	if cfg.Indexer.BatchSize < 0 || cfg.Indexer.IntervalSeconds < 0 {
		return fmt.Errorf("indexer: batch size and interval must be >= 0")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must be >= 0")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	if cfg.LogMaxSizeMB < 0 || cfg.LogMaxBackups < 0 {
		return fmt.Errorf("logging: rotation limits must be >= 0")
	}
	return nil
}
