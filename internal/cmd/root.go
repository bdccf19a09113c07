package cmd

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/thumbcache/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "thumbcache",
	Short: "Offscreen thumbnail renderer and cache",
	Long: `Thumbcache renders keyring thumbnails offscreen, validates them against a
blank-image heuristic and stores them in a disk cache shared with widget
surfaces. Failed renders are retried a bounded number of times, and a
scheduled sweep re-renders anything missing or corrupt.`,
	SilenceUsage: true,
}

// manifestPath is the entity manifest shared by render, retry and serve.
var manifestPath string

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/thumbcache/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "entity manifest (default is sweep.manifest)")
}

func initConfig() {
	// .env is optional; values already in the environment take precedence
	_ = godotenv.Load()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("THUMBCACHE")
	// e.g., THUMBCACHE_CAPTURE_MAX_RETRIES for capture.max_retries
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadApp loads the configuration and builds the composition root.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}
