package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novaos/novaos/config"
)

// validateCmd validates configuration without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate novaos configuration without starting the server.

This command parses the YAML (if given), applies environment overrides,
validates all fields and builds every producer. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  novaos validate -c novaos.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(configPath(cmd), settings)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	producers, err := config.BuildProducers(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Ports:     relay %d, metrics %d, memory %d\n",
		cfg.Ports.Relay, cfg.Ports.Metrics, cfg.Ports.Memory)
	fmt.Fprintf(out, "  Channel:   %s\n", cfg.Channels.Relay)
	fmt.Fprintf(out, "  Queue key: %s\n", cfg.Keys.Queue)
	fmt.Fprintf(out, "  Producers: %d\n", len(producers))
	for _, p := range producers {
		fmt.Fprintf(out, "    - %s every %s\n", p.Name(), p.Interval())
	}

	return nil
}
