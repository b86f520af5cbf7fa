package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands.
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddStringSliceFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen       = "listen"
	FlagUpstream     = "upstream"
	FlagAllow        = "allow"
	FlagAllowFile    = "allow-file"
	FlagAuditBackend = "audit-backend"
	FlagAuditPath    = "audit-path"
	FlagKafkaBrokers = "kafka-brokers"
	FlagKafkaTopic   = "kafka-topic"
)

// ServeFlags is the flag registry for the serve command.
var ServeFlags = FlagSet{
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "proxy.listen",
		Description: "Address for the proxy to listen on",
	},
	FlagUpstream: {
		Name:        "upstream",
		Shorthand:   "u",
		ViperKey:    "proxy.upstream",
		Description: "Upstream API base URL",
	},
	FlagAllow: {
		Name:        "allow",
		ViperKey:    "allowlist.addresses",
		Description: "Allowed caller address or CIDR (repeatable; empty disables the gate)",
	},
	FlagAllowFile: {
		Name:        "allow-file",
		ViperKey:    "allowlist.file",
		Description: "Allowlist file (one address or CIDR per line), watched for changes and merged with --allow rules",
	},
	FlagAuditBackend: {
		Name:        "audit-backend",
		ViperKey:    "audit.backend",
		Description: "Audit backend (none, file, sqlite, kafka)",
	},
	FlagAuditPath: {
		Name:        "audit-path",
		ViperKey:    "audit.path",
		Description: "Audit log file or SQLite database path",
	},
	FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "audit.kafka_brokers",
		Description: "Kafka bootstrap broker addresses for the kafka audit backend",
	},
	FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "audit.kafka_topic",
		Description: "Kafka topic for the kafka audit backend",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddStringSliceFlag registers a string slice flag on cmd from the given FlagSet.
func AddStringSliceFlag(cmd *cobra.Command, fs FlagSet, key string, target *[]string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultStringSlice(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringSliceVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringSliceVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultStringSlice returns the default string slice value for a viper key.
func defaultStringSlice(viperKey string) []string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetStringSlice(viperKey)
}
