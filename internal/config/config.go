package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "DRIFTDNS"

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("DRIFTDNS_CONFIG")); v != "" {
		return v
	}
	return ""
}

// newViper sets up a Viper instance with DRIFTDNS_ env binding and, if
// configPath is non-empty, a YAML config file loaded over the defaults.
func newViper(configPath string, setDefaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

func nameserverDefaults(v *viper.Viper) {
	v.SetDefault("udp_addr", "0.0.0.0:53")
	v.SetDefault("tcp_addr", "0.0.0.0:53")
	v.SetDefault("zones", []string{})
	v.SetDefault("workers", "auto")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	v.SetDefault("admin_api.enabled", false)
	v.SetDefault("admin_api.host", "127.0.0.1")
	v.SetDefault("admin_api.port", 8080)

	setRateLimitDefaults(v)
}

func resolverDefaults(v *viper.Viper) {
	v.SetDefault("udp_addr", "0.0.0.0:53")
	v.SetDefault("tcp_addr", "0.0.0.0:53")
	v.SetDefault("root_hints", []map[string]string{})
	v.SetDefault("workers", "auto")

	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.sweep_interval", "1m")

	v.SetDefault("query_timeout", "3s")
	v.SetDefault("total_timeout", "20s")
	v.SetDefault("max_attempts", 16)

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.destination", "")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	v.SetDefault("admin_api.enabled", false)
	v.SetDefault("admin_api.host", "127.0.0.1")
	v.SetDefault("admin_api.port", 8080)

	setRateLimitDefaults(v)
}

func setRateLimitDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.cleanup_seconds", 60.0)
	v.SetDefault("rate_limit.max_ip_entries", 65536)
	v.SetDefault("rate_limit.max_prefix_entries", 16384)
	v.SetDefault("rate_limit.global_qps", 100000.0)
	v.SetDefault("rate_limit.global_burst", 100000)
	v.SetDefault("rate_limit.prefix_qps", 10000.0)
	v.SetDefault("rate_limit.prefix_burst", 20000)
	v.SetDefault("rate_limit.ip_qps", 5000.0)
	v.SetDefault("rate_limit.ip_burst", 10000)
}

func loadLogging(v *viper.Viper) LoggingConfig {
	return LoggingConfig{
		Level:            strings.ToUpper(v.GetString("logging.level")),
		Structured:       v.GetBool("logging.structured"),
		StructuredFormat: v.GetString("logging.structured_format"),
		IncludePID:       v.GetBool("logging.include_pid"),
		ExtraFields:      v.GetStringMapString("logging.extra_fields"),
	}
}

func loadAdminAPI(v *viper.Viper) AdminAPIConfig {
	return AdminAPIConfig{
		Enabled: v.GetBool("admin_api.enabled"),
		Host:    v.GetString("admin_api.host"),
		Port:    v.GetInt("admin_api.port"),
	}
}

func loadRateLimit(v *viper.Viper) RateLimitConfig {
	return RateLimitConfig{
		CleanupSeconds:   v.GetFloat64("rate_limit.cleanup_seconds"),
		MaxIPEntries:     v.GetInt("rate_limit.max_ip_entries"),
		MaxPrefixEntries: v.GetInt("rate_limit.max_prefix_entries"),
		GlobalQPS:        v.GetFloat64("rate_limit.global_qps"),
		GlobalBurst:      v.GetInt("rate_limit.global_burst"),
		PrefixQPS:        v.GetFloat64("rate_limit.prefix_qps"),
		PrefixBurst:      v.GetInt("rate_limit.prefix_burst"),
		IPQPS:            v.GetFloat64("rate_limit.ip_qps"),
		IPBurst:          v.GetInt("rate_limit.ip_burst"),
	}
}

// LoadNameserverConfig loads driftdns-auth's configuration from configPath
// (may be empty, in which case only env vars and defaults apply).
func LoadNameserverConfig(configPath string) (*NameserverConfig, error) {
	v, err := newViper(configPath, nameserverDefaults)
	if err != nil {
		return nil, err
	}

	cfg := &NameserverConfig{
		UDPAddr:    v.GetString("udp_addr"),
		TCPAddr:    v.GetString("tcp_addr"),
		Zones:      getStringSliceOrSplit(v, "zones"),
		WorkersRaw: v.GetString("workers"),
		Logging:    loadLogging(v),
		AdminAPI:   loadAdminAPI(v),
		RateLimit:  loadRateLimit(v),
	}
	cfg.Workers = parseWorkers(cfg.WorkersRaw)

	if err := normalizeNameserverConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadResolverConfig loads driftdns-resolve's configuration from configPath.
func LoadResolverConfig(configPath string) (*ResolverConfig, error) {
	v, err := newViper(configPath, resolverDefaults)
	if err != nil {
		return nil, err
	}

	var hints []RootHintConfig
	if err := v.UnmarshalKey("root_hints", &hints); err != nil {
		hints = nil
	}

	cfg := &ResolverConfig{
		UDPAddr:   v.GetString("udp_addr"),
		TCPAddr:   v.GetString("tcp_addr"),
		RootHints: hints,
		Cache: CacheConfig{
			MaxEntries:    v.GetInt("cache.max_entries"),
			SweepInterval: v.GetString("cache.sweep_interval"),
		},
		QueryTimeout: v.GetString("query_timeout"),
		TotalTimeout: v.GetString("total_timeout"),
		MaxAttempts:  v.GetInt("max_attempts"),
		Trace: TraceConfig{
			Enabled:     v.GetBool("trace.enabled"),
			Destination: v.GetString("trace.destination"),
		},
		WorkersRaw: v.GetString("workers"),
		Logging:    loadLogging(v),
		AdminAPI:   loadAdminAPI(v),
		RateLimit:  loadRateLimit(v),
	}
	cfg.Workers = parseWorkers(cfg.WorkersRaw)

	if err := normalizeResolverConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalizeNameserverConfig(cfg *NameserverConfig) error {
	if cfg.UDPAddr == "" {
		return errors.New("udp_addr must not be empty")
	}
	if len(cfg.Zones) == 0 {
		return errors.New("zones must name at least one zone file")
	}
	normalizeLogging(&cfg.Logging)
	return normalizeAdminAPI(&cfg.AdminAPI)
}

func normalizeResolverConfig(cfg *ResolverConfig) error {
	if cfg.UDPAddr == "" {
		return errors.New("udp_addr must not be empty")
	}
	if cfg.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	if cfg.Cache.MaxEntries <= 0 {
		return errors.New("cache.max_entries must be positive")
	}
	normalizeLogging(&cfg.Logging)
	return normalizeAdminAPI(&cfg.AdminAPI)
}

func normalizeLogging(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "INFO"
	}
	if l.StructuredFormat == "" {
		l.StructuredFormat = "json"
	}
	if l.ExtraFields == nil {
		l.ExtraFields = map[string]string{}
	}
}

func normalizeAdminAPI(a *AdminAPIConfig) error {
	if a.Host == "" {
		a.Host = "127.0.0.1"
	}
	if a.Enabled && (a.Port <= 0 || a.Port > 65535) {
		return errors.New("admin_api.port must be 1..65535")
	}
	return nil
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}
