package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/novaos/novaos"
	"github.com/novaos/novaos/config"
)

const (
	startTimeout    = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the novaos services.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay, services and producers",
	Long: `Run novaos until interrupted (Ctrl+C) or sent SIGTERM.

The server will:
  - Resolve configuration from the YAML file (if given) and the environment
  - Connect to the store
  - Serve the relay, metrics and memory services on their ports
  - Run every configured producer

Example:
  novaos serve -c novaos.yaml
  REDIS_URL=redis://localhost:6379/0 novaos serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(configPath(cmd), settings)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.Int("producers", len(cfg.Producers)),
		zap.String("channel", cfg.Channels.Relay),
		zap.String("queue", cfg.Keys.Queue),
	)

	app := fx.New(appOptions(cfg, logger))

	startCtx, cancelStart := context.WithTimeout(context.Background(), startTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	sig := <-app.Wait()
	logger.Info("shutting down", zap.Stringer("signal", sig))

	stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("shutdown timed out",
				zap.Duration("timeout", shutdownTimeout),
				zap.String("action", "forcing exit"),
			)
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("novaos exited with code %d", sig.ExitCode)
	}

	logger.Info("shutdown complete")
	return nil
}

// appOptions assembles the fx application: the resolved config and logger
// are supplied, the NovaOS instance is built from them and its run loop is
// tied to the application lifecycle.
func appOptions(cfg *config.Config, logger *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			fl := &fxevent.ZapLogger{Logger: l.Named("fx")}
			fl.UseLogLevel(zap.DebugLevel)
			return fl
		}),
		fx.Provide(newNovaOS),
		fx.Invoke(runNovaOS),
	)
}

func newNovaOS(cfg *config.Config, logger *zap.Logger) (*novaos.NovaOS, error) {
	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build producers: %w", err)
	}
	opts = append(opts, novaos.WithRunCallback(func(r novaos.RunResult) {
		if r.Error != nil {
			return
		}
		logger.Debug("producer run",
			zap.String("producer", r.Producer),
			zap.String("outcome", r.Outcome()),
			zap.Duration("duration", r.Duration),
		)
	}))

	n, err := novaos.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create novaos: %w", err)
	}
	return n, nil
}

// runNovaOS starts n when the application starts and stops it when the
// application stops. If n fails while running, the application is shut
// down with exit code 1.
func runNovaOS(lc fx.Lifecycle, sd fx.Shutdowner, n *novaos.NovaOS, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			go func() { done <- n.Start(ctx) }()

			select {
			case <-n.Ready():
			case err := <-done:
				cancel()
				if err == nil {
					err = errors.New("novaos stopped before becoming ready")
				}
				return err
			case <-startCtx.Done():
				cancel()
				return startCtx.Err()
			}

			go func() {
				err := <-done
				if err != nil {
					logger.Error("novaos stopped", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
				stopped <- err
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case err := <-stopped:
				return err
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
