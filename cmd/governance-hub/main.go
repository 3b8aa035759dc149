// Package main is the entry point for the governance-hub binary.
// It serves the operator API and fans governance snapshots out to websocket subscribers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Vihanga22365/governance-analysis/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for governance-hub
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "governance-hub",
		Short: "Governance approval hub",
		Long: `Tracks committee clarifications and approval status for governance cases and
pushes a consolidated snapshot to every connected websocket subscriber after
each change.

Example:
  governance-hub --config hub.yaml --ws-addr :8354`,
		SilenceUsage: true,
		RunE:         runHub,
	}

	rootCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("api-addr", "", "Operator API listen address")
	rootCmd.Flags().String("ws-addr", "", "Subscriber websocket listen address")

	return rootCmd
}

// loadConfig loads the file named by --config and applies the remaining flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}

	changed := false
	for flag, target := range map[string]*string{
		"log-level": &cfg.Logging.Level,
		"api-addr":  &cfg.Server.APIAddress,
		"ws-addr":   &cfg.Server.WSAddress,
	} {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		val, err := cmd.Flags().GetString(flag)
		if err != nil {
			return nil, "", fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*target = val
		changed = true
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, "", fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return cfg, path, nil
}

func runHub(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	return a.run(ctx, path)
}
