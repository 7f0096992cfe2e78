package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/skycast/pkg/cliui"
	"github.com/papercomputeco/skycast/pkg/config"
)

const listLongDesc string = `List every configuration key with its effective value.

Keys are grouped by TOML section. Values not present in config.toml show
the built-in default.

Examples:
  skycast config list
  skycast config list --config-dir ./deploy/.skycast`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir)
		},
	}
}

func runList(w io.Writer, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(w, cfger)

	keys := config.ValidConfigKeys()
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}

	section := ""
	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}

		if s, _, _ := strings.Cut(key, "."); s != section {
			if section != "" {
				fmt.Fprintln(w)
			}
			section = s
			fmt.Fprintf(w, "  %s\n", cliui.HeaderStyle.Render("["+s+"]"))
		}

		shown := fmt.Sprintf("%q", value)
		if value == "" {
			shown = cliui.DimStyle.Render("<not set>")
		}
		fmt.Fprintf(w, "  %-*s = %s\n", width, key, shown)
	}
	return nil
}
