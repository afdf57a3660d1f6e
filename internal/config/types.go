// Package config provides configuration loading for driftdns-auth and
// driftdns-resolve using Viper. Each binary has its own config shape;
// both load from a single YAML file path with environment variable
// overrides and hardcoded defaults, same three-tier precedence.
//
// Environment variables use the DRIFTDNS_ prefix and underscore-separated
// keys, e.g. DRIFTDNS_UDP_ADDR -> udp_addr, DRIFTDNS_LOGGING_LEVEL ->
// logging.level.
package config

import (
	"strconv"
	"strings"
)

// WorkersMode specifies how worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// LoggingConfig contains logging settings, shared by both binaries.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// AdminAPIConfig contains the loopback-only admin/observability API settings,
// shared by both binaries.
type AdminAPIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
}

// NameserverConfig is driftdns-auth's configuration, matching spec.md §6's
// field-for-field description of the authoritative server.
type NameserverConfig struct {
	UDPAddr string   `yaml:"udp_addr" mapstructure:"udp_addr"`
	TCPAddr string   `yaml:"tcp_addr" mapstructure:"tcp_addr"`
	Zones   []string `yaml:"zones"    mapstructure:"zones"`

	Workers    WorkerSetting `yaml:"-"       mapstructure:"-"`
	WorkersRaw string        `yaml:"workers" mapstructure:"workers"`

	Logging  LoggingConfig  `yaml:"logging"   mapstructure:"logging"`
	AdminAPI AdminAPIConfig `yaml:"admin_api" mapstructure:"admin_api"`

	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CacheConfig controls C6's record/NS cache sizing and sweeping.
type CacheConfig struct {
	MaxEntries    int    `yaml:"max_entries"    mapstructure:"max_entries"`
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// TraceConfig controls per-resolution tracing (spec.md §4.7 "Tracing").
type TraceConfig struct {
	Enabled     bool   `yaml:"enabled"     mapstructure:"enabled"`
	Destination string `yaml:"destination" mapstructure:"destination"` // "log" or "" (discard)
}

// RootHintConfig is one seed root/forwarding server.
type RootHintConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	IP   string `yaml:"ip"   mapstructure:"ip"`
}

// ResolverConfig is driftdns-resolve's configuration, matching spec.md §6's
// field-for-field description of the recursive resolver.
type ResolverConfig struct {
	UDPAddr   string           `yaml:"udp_addr"   mapstructure:"udp_addr"`
	TCPAddr   string           `yaml:"tcp_addr"   mapstructure:"tcp_addr"`
	RootHints []RootHintConfig `yaml:"root_hints" mapstructure:"root_hints"`

	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	QueryTimeout string `yaml:"query_timeout" mapstructure:"query_timeout"`
	TotalTimeout string `yaml:"total_timeout" mapstructure:"total_timeout"`
	MaxAttempts  int    `yaml:"max_attempts"  mapstructure:"max_attempts"`

	Trace TraceConfig `yaml:"trace" mapstructure:"trace"`

	Workers    WorkerSetting `yaml:"-"       mapstructure:"-"`
	WorkersRaw string        `yaml:"workers" mapstructure:"workers"`

	Logging  LoggingConfig  `yaml:"logging"   mapstructure:"logging"`
	AdminAPI AdminAPIConfig `yaml:"admin_api" mapstructure:"admin_api"`

	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig controls pre-parse admission control, shared by both
// binaries (internal/server.RateLimiter).
type RateLimitConfig struct {
	CleanupSeconds   float64 `yaml:"cleanup_seconds"    mapstructure:"cleanup_seconds"`
	MaxIPEntries     int     `yaml:"max_ip_entries"     mapstructure:"max_ip_entries"`
	MaxPrefixEntries int     `yaml:"max_prefix_entries" mapstructure:"max_prefix_entries"`
	GlobalQPS        float64 `yaml:"global_qps"         mapstructure:"global_qps"`
	GlobalBurst      int     `yaml:"global_burst"       mapstructure:"global_burst"`
	PrefixQPS        float64 `yaml:"prefix_qps"         mapstructure:"prefix_qps"`
	PrefixBurst      int     `yaml:"prefix_burst"       mapstructure:"prefix_burst"`
	IPQPS            float64 `yaml:"ip_qps"             mapstructure:"ip_qps"`
	IPBurst          int     `yaml:"ip_burst"           mapstructure:"ip_burst"`
}
