// Package cmd defines the CLI: one binary, one subcommand per process
// role (sim, supervise, bridge).
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minefleet/minefleet/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "minefleet",
	Short: "Mine truck fleet simulator and supervisory control",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (json or yaml)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the --config file, or the built-in defaults when the
// flag is unset.
func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
