// Package configcmder provides the config command for managing persistent
// skycast configuration stored in the .skycast/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/skycast/pkg/cliui"
	"github.com/papercomputeco/skycast/pkg/config"
)

const configLongDesc string = `Manage persistent skycast configuration.

Configuration is stored as config.toml in the .skycast/ directory and provides
default values for command flags. CLI flags and SKYCAST_ environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.listen,
  agent.name, agent.provider, agent.model, agent.upstream, agent.max_steps,
  weather.geocoding_url, weather.forecast_url, weather.cache,
  weather.redis_addr, weather.cache_ttl, weather.rate_per_second,
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  eventstream.kafka_brokers, eventstream.kafka_topic,
  client.target

Use subcommands to get, set, or list configuration values:
  skycast config set <key> <value>    Set a configuration value
  skycast config get <key>            Get a configuration value
  skycast config list                 List all configuration values

Examples:
  skycast config set agent.model llama3.2
  skycast config set storage.driver postgres
  skycast config get agent.provider
  skycast config list`

const configShortDesc string = "Manage persistent skycast configuration"

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

// completeKeys offers config keys for the first argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	fmt.Fprintf(w, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Config file:"),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
}
