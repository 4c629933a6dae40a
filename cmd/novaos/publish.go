package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/novaos/novaos/config"
	"github.com/novaos/novaos/internal/producer"
	"github.com/novaos/novaos/internal/store"
)

// publishCmd announces one event on the relay channel.
var publishCmd = &cobra.Command{
	Use:   "publish [flags] <text>",
	Short: "Publish an event on the relay channel",
	Long: `Publish {"agent": ..., "text": ...} on the relay channel, as a producer
would. Every client connected to the relay receives it.

Example:
  novaos publish --agent Deployer "v1.4.2 is live"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("agent", "cli", "agent name carried by the event")
	publishCmd.Flags().Duration("timeout", 5*time.Second, "time limit for connecting and publishing")
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(configPath(cmd), settings)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	agent, _ := cmd.Flags().GetString("agent")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	st, err := store.Open(store.RedisOptions{
		URL:       cfg.Store.URL,
		OpTimeout: cfg.Store.OpTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	pub, err := producer.NewPublisher(st, cfg.Channels.Relay)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	ev := producer.Event{Agent: agent, Text: strings.Join(args, " ")}
	if err := pub.Publish(ctx, ev); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Published to %s\n", pub.Channel())
	return nil
}
