// Command example runs novaos against an in-process Redis with three
// producers: the built-in TrendFetcher, an HTTPCheck watching a mock
// service that cycles through ok, degraded and down, and a custom Heartbeat.
//
//	go run ./example
//	websocat ws://localhost:4000/ws
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/novaos/novaos"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("example failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	mr, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("start redis: %w", err)
	}
	defer mr.Close()

	healthURL, err := startMockHealthServer(logger.Named("mock"))
	if err != nil {
		return fmt.Errorf("start mock server: %w", err)
	}

	trend, err := novaos.TrendFetcher(novaos.WithInterval(15 * time.Second))
	if err != nil {
		return err
	}

	check, err := novaos.HTTPCheck("Orders", healthURL,
		novaos.WithExtractor(novaos.JSONFieldHealth("status")),
		novaos.WithSchedule(novaos.WithInterval(5*time.Second)),
	)
	if err != nil {
		return err
	}

	heartbeat, err := novaos.NewProducer("Heartbeat", func(ctx context.Context, st novaos.Store) (*novaos.Event, error) {
		n, err := st.ListLen(ctx, "chat_memory")
		if err != nil {
			return nil, err
		}
		return &novaos.Event{Text: fmt.Sprintf("%d journal entries", n)}, nil
	}, novaos.WithInterval(30*time.Second))
	if err != nil {
		return err
	}

	n, err := novaos.New(
		novaos.WithStoreURL("redis://"+mr.Addr()+"/0"),
		novaos.WithProducers(trend, check, heartbeat),
		novaos.WithLogger(logger),
		novaos.WithRunCallback(func(r novaos.RunResult) {
			if r.Event != nil {
				logger.Info("announced", zap.String("agent", r.Event.Agent), zap.String("text", r.Event.Text))
			}
		}),
	)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("  novaos demo")
	fmt.Println()
	fmt.Println("  relay:   ws://localhost:4000/ws or http://localhost:4000/events")
	fmt.Println("  metrics: http://localhost:5000/metrics, /producers, /prometheus")
	fmt.Println("  memory:  http://localhost:6000/memory")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return n.Start(ctx)
}
