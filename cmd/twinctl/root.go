package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/config"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
	"github.com/gemelo-digital/urgencias-twin/internal/redisclient"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "twinctl",
	Short: "Control CLI for the urgencias-twin digital twin",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	rootCmd.AddCommand(startCmd, stopCmd, speedCmd, injectIncidentCmd)
}

// newBusClient loads config and opens a bus client for one CLI invocation.
func newBusClient() (*config.Config, *bus.Client, *zap.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	rdb := redisclient.New(cfg)
	registry := bus.NewSchemaRegistry()
	client := bus.New(rdb, registry, logger)
	cleanup := func() {
		_ = logger.Sync()
		_ = rdb.Close()
	}
	return cfg, client, logger, cleanup, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
