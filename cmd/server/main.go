package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/logger"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "aegis-server",
		Short:         "Adaptive risk-based authentication decision service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file (default searches /etc/aegis and .)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	// Logger for startup
	bootLog, err := monitoring.NewZapLogger(config.DefaultConfig().Log)
	if err != nil {
		return fmt.Errorf("failed to create startup logger: %w", err)
	}

	loader := config.NewLoader(configFile, bootLog)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := monitoring.NewZapLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	app, err := buildApp(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, "Failed to initialize service", err)
		return err
	}

	// thresholds, weights and claim settings reload without a restart
	loader.Watch(app.pipeline.Reconfigure)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	app.start(workerCtx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.router.Start()
	}()

	select {
	case <-ctx.Done():
		appLogger.Info(context.Background(), "Shutdown signal received")
	case err = <-serverErr:
		if err != nil {
			appLogger.Error(context.Background(), "HTTP server failed", err)
		}
	}

	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	app.shutdown(shutdownCtx)
	appLogger.Info(shutdownCtx, "Service stopped", logger.String("version", version))
	return err
}
