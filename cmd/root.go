// Package cmd provides the scriptserv command-line interface.
//
// Configuration is read, highest priority first, from command-line flags,
// SCRIPTSERV_<SECTION>_<KEY> environment variables, the file named by
// --config or SCRIPTSERV_CONFIG_FILE, and finally .scriptserv.yml in the
// working directory.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/scriptserv/internal/config"
)

var (
	cfgFile   string
	configErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scriptserv",
	Short: "A small HTTP/1.1 server for static files, .smscr templates and workers",
	Long: `scriptserv serves a document root over HTTP/1.1. Files ending in a template
extension are executed as SmartScript templates; everything else is streamed
as-is. Named workers handle dynamic routes, and sessions keep per-client
parameters across requests.

Quick Start:
  scriptserv serve                      Serve ./webroot on port 5721
  scriptserv render page.smscr -P a=1   Print the response a template produces
  scriptserv validate                   Check every template under the root
  scriptserv version                    Show build information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .scriptserv.yml, can also use SCRIPTSERV_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points the global Viper instance at the configuration file.
// Errors are kept until a command asks for the configuration.
func initConfig() {
	file := cfgFile
	if file == "" {
		file = os.Getenv(config.EnvPrefix + "_CONFIG_FILE")
	}
	configErr = config.Configure(viper.GetViper(), file)
	if configErr == nil && viper.ConfigFileUsed() != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig returns the merged configuration for a command.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
