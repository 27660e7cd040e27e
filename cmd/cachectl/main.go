package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"
	pkgconfig "github.com/sentra-ai/diagnosis-proxy/pkg/config"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "cachectl",
		Short:   "Operate the Sentra diagnosis caches and circuit breakers",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(
		newWarmCmd(&configPath),
		newStatsCmd(&configPath),
		newInvalidateCmd(&configPath),
		newSweepCmd(&configPath),
		newCircuitCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openCore loads configuration and wires the same services the server uses.
func openCore(ctx context.Context, configPath string) (*pkgconfig.Core, error) {
	config.LoadEnvFiles([]string{".env.local", ".env"})

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return pkgconfig.NewCore(ctx, cfg)
}
