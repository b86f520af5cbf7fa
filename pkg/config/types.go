package config

// Config represents the persistent ferry configuration stored as config.toml
// in the .ferry/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Allowlist AllowlistConfig `toml:"allowlist"`
	Audit     AuditConfig     `toml:"audit"`
}

// ProxyConfig holds proxy-specific settings.
type ProxyConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Upstream string `toml:"upstream,omitempty"`
}

// AllowlistConfig holds the caller allowlist settings. Addresses may be
// single IPs or CIDRs. File, when set, points at an allowlist file that is
// watched for live reload. An empty allowlist disables the gate entirely.
type AllowlistConfig struct {
	Addresses []string `toml:"addresses,omitempty"`
	File      string   `toml:"file,omitempty"`
}

// AuditConfig holds audit trail settings.
// Backend selects the recorder: "none", "file", "sqlite", or "kafka".
// Path is the log file or database path for the file and sqlite backends.
type AuditConfig struct {
	Backend      string   `toml:"backend,omitempty"`
	Path         string   `toml:"path,omitempty"`
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
// List-valued settings (allowlist.addresses, audit.kafka_brokers) are only
// reachable via the config file or flags, not the get/set surface.
var configKeys = map[string]configKeyInfo{
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"allowlist.file": {
		get: func(c *Config) string { return c.Allowlist.File },
		set: func(c *Config, v string) error { c.Allowlist.File = v; return nil },
	},
	"audit.backend": {
		get: func(c *Config) string { return c.Audit.Backend },
		set: func(c *Config, v string) error { c.Audit.Backend = v; return nil },
	},
	"audit.path": {
		get: func(c *Config) string { return c.Audit.Path },
		set: func(c *Config, v string) error { c.Audit.Path = v; return nil },
	},
	"audit.kafka_topic": {
		get: func(c *Config) string { return c.Audit.KafkaTopic },
		set: func(c *Config, v string) error { c.Audit.KafkaTopic = v; return nil },
	},
}
