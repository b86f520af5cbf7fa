// Package configcmder provides the config command for managing persistent
// ferry configuration stored in the .ferry/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent ferry configuration.

Configuration is stored as config.toml in the .ferry/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  proxy.listen, proxy.upstream,
  allowlist.file,
  audit.backend, audit.path, audit.kafka_topic

Use subcommands to get, set, or list configuration values:
  ferry config set <key> <value>    Set a configuration value
  ferry config get <key>            Get a configuration value
  ferry config list                 List all configuration values

Examples:
  ferry config set proxy.upstream https://api.openai.com
  ferry config set audit.backend sqlite
  ferry config get proxy.listen
  ferry config list`

const configShortDesc string = "Manage persistent ferry configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
