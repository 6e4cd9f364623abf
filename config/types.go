package config

import "time"

// Supported indexer database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Indexer selects the database the event log is projected into.
type Indexer struct {
	Driver          string `toml:"Driver"`
	DSN             string `toml:"DSN"`
	BatchSize       int    `toml:"BatchSize"`
	IntervalSeconds int    `toml:"IntervalSeconds"`
}

// Interval returns the pause between sync passes.
func (i Indexer) Interval() time.Duration {
	return time.Duration(i.IntervalSeconds) * time.Second
}

// RateLimit bounds query API requests per client address. The client is the
// connection's remote address unless TrustProxyHeaders is set, in which case
// X-Real-IP and X-Forwarded-For name it. Only enable that behind a proxy that
// overwrites those headers.
type RateLimit struct {
	RequestsPerMinute int  `toml:"RequestsPerMinute"`
	Burst             int  `toml:"Burst"`
	TrustProxyHeaders bool `toml:"TrustProxyHeaders"`
}

// Enabled reports whether requests should be throttled at all.
func (r RateLimit) Enabled() bool {
	return r.RequestsPerMinute > 0
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Traces   bool              `toml:"Traces"`
	Metrics  bool              `toml:"Metrics"`
	Headers  map[string]string `toml:"Headers"`

	// SampleRatio keeps this fraction of root traces; 0 keeps all.
	SampleRatio float64 `toml:"SampleRatio"`
}
