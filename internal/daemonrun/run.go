package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"feple/internal/config"
	"feple/internal/daemon"
	"feple/internal/logging"
)

// Options adjusts daemon startup behavior.
type Options struct {
	// ConfigPath overrides config file discovery when non-empty.
	ConfigPath string
}

// Run starts the daemon and blocks until the context ends or SIGINT/SIGTERM
// arrives, then shuts down gracefully.
func Run(ctx context.Context, opts Options) error {
	cfg, configPath, found, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if found {
		logger.Info("configuration loaded", logging.String("path", configPath))
	} else {
		logger.Info("no configuration file found, using defaults",
			logging.String("searched", configPath))
	}

	return RunWith(ctx, cfg, logger)
}

// RunWith runs the daemon against an already loaded config and logger.
func RunWith(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.Close(); closeErr != nil {
			logger.Warn("daemon close failed", logging.Error(closeErr))
		}
	}()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	stop()
	logger.Info("shutdown requested")

	// Shutdown runs on a fresh context; the triggering one is already done.
	d.Stop(context.Background())
	return nil
}
