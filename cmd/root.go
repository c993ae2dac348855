// Package cmd provides the stonesite command-line interface.
//
// Configuration is read from, in order of precedence:
//  1. Command-line flags (--port, --host, --log-level)
//  2. STONESITE_ prefixed environment variables (STONESITE_SERVER_PORT, ...)
//     and the EmailJS credential variables (EMAILJS_SERVICE_ID, ...)
//  3. The config file: --config, else STONESITE_CONFIG_FILE, else
//     .stonesite.yml in the working directory
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stonesite",
	Short: "Marketing site and contact relay for DC Marble & Granite",
	Long: `stonesite serves the DC Marble & Granite Restoration marketing page and
relays contact-form submissions to EmailJS.

Quick Start:
  stonesite serve                       Start the site on localhost:8080
  stonesite send --name ... --email ... Send a test message
  stonesite version                     Show version information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .stonesite.yml, can also use STONESITE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	addFlagValidation(rootCmd.PersistentFlags(), "log-level", validateLogLevel)
}

// initConfig points viper at the config file and environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("STONESITE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".stonesite")
	}

	viper.SetEnvPrefix("STONESITE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or unreadable file is not fatal; config.Load reports
	// anything still missing.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
