// Package ferrycmder
package ferrycmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/harborworks/ferry/cmd/ferry/config"
	servecmder "github.com/harborworks/ferry/cmd/ferry/serve"
	versioncmder "github.com/harborworks/ferry/cmd/version"
)

const ferryLongDesc string = `Ferry is a transparent auditing proxy for JSON/HTTP APIs.

It forwards every request verbatim to the configured upstream, relays
event-stream responses incrementally, and keeps an audit record of each
exchange.

Run services using:
  ferry serve          Run the proxy server
  ferry config         Manage persistent configuration`

const ferryShortDesc string = "Ferry - Transparent API Proxy"

func NewFerryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ferry",
		Short: ferryShortDesc,
		Long:  ferryLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .ferry/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
