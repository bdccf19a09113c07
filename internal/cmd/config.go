package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/thumbcache/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View thumbcache configuration",
	Long: `View thumbcache configuration.

Without arguments, displays the effective configuration: defaults merged
with the config file and THUMBCACHE_* environment variables.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return showConfig(cmd.OutOrStdout(), cfg, viper.ConfigFileUsed())
}

// showConfig prints cfg as YAML using the config file keys.
func showConfig(out io.Writer, cfg *config.Config, source string) error {
	if source != "" {
		fmt.Fprintf(out, "# Config file: %s\n", source)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}
	fmt.Fprintf(out, "# Cache root: %s\n", cfg.Cache.ResolveRoot())

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, config.ConfigFile())
	if used := viper.ConfigFileUsed(); used != "" && used != config.ConfigFile() {
		fmt.Fprintf(out, "(currently using: %s)\n", used)
	}
	return nil
}
