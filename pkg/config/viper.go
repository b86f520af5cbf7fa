package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/harborworks/ferry/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the FERRY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (FERRY_PROXY_LISTEN, FERRY_AUDIT_BACKEND, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: FERRY_PROXY_LISTEN, FERRY_AUDIT_PATH, etc.
	v.SetEnvPrefix("FERRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Proxy
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.upstream", d.Proxy.Upstream)

	// Allowlist
	v.SetDefault("allowlist.addresses", d.Allowlist.Addresses)
	v.SetDefault("allowlist.file", d.Allowlist.File)

	// Audit
	v.SetDefault("audit.backend", d.Audit.Backend)
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("audit.kafka_brokers", d.Audit.KafkaBrokers)
	v.SetDefault("audit.kafka_topic", d.Audit.KafkaTopic)
}
