// Package main is the entry point for the novaos CLI.
//
// novaos can be embedded as a library (SDK) or run as a standalone binary
// configured by a YAML file and environment variables. This CLI provides the
// standalone binary.
//
// Usage:
//
//	novaos serve -c novaos.yaml      # Run the relay, services and producers
//	novaos validate -c novaos.yaml   # Validate configuration
//	novaos publish "deploy finished" # Announce an event on the relay channel
//	novaos version                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// settings holds values from flags and the environment that overlay the
// config file.
var settings = newSettings()

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "novaos",
	Short: "Event relay and metrics snapshot service",
	Long: `novaos relays events published on a Redis channel to websocket and
server-sent event clients, serves counter snapshots and a chat journal over
HTTP, and runs background producers that announce on the relay channel.

Quick start:
  1. export REDIS_URL=redis://localhost:6379/0
  2. Run: novaos serve
  3. Connect to ws://localhost:4000/ws

Every setting can come from a YAML file (-c), with environment variables
taking precedence:
  REDIS_URL, REDIS_QUEUE, RELAY_PORT, METRICS_PORT, MEMORY_PORT,
  RELAY_CHANNEL, NOVAOS_LOG_LEVEL`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this novaos binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "novaos %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	bindFlags(settings, rootCmd)
}

// newSettings returns a viper instance bound to the environment variables
// the service has always read, plus NOVAOS_-prefixed forms of every key.
func newSettings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("NOVAOS")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	for key, env := range envBindings {
		_ = v.BindEnv(append([]string{key}, env...)...)
	}
	return v
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	_ = v.BindPFlag(configKeyLogLevel, cmd.PersistentFlags().Lookup("log-level"))
}

// configPath returns the --config flag value.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
