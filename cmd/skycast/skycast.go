// Package skycastcmder
package skycastcmder

import (
	"github.com/spf13/cobra"

	versioncmder "github.com/papercomputeco/skycast/cmd/version"
	askcmder "github.com/papercomputeco/skycast/cmd/skycast/ask"
	configcmder "github.com/papercomputeco/skycast/cmd/skycast/config"
	servecmder "github.com/papercomputeco/skycast/cmd/skycast/serve"
	turnscmder "github.com/papercomputeco/skycast/cmd/skycast/turns"
)

const skycastLongDesc string = `Skycast streams weather agent answers to clients as server-sent events.

Run the server and talk to it using:
  skycast serve        Run the skycast server
  skycast ask          Ask the server about the weather
  skycast turns        Inspect recorded turns
  skycast config       Manage persistent configuration`

const skycastShortDesc string = "Skycast - Weather Agent Streaming"

func NewSkycastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "skycast",
		Short:        skycastShortDesc,
		Long:         skycastLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .skycast/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(turnscmder.NewTurnsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
