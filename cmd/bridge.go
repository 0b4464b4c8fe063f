package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/minefleet/minefleet/infra/logger"
	"github.com/minefleet/minefleet/infra/mqtt"
	"github.com/minefleet/minefleet/infra/relay"
	"github.com/minefleet/minefleet/internal/clock"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Relay bus traffic to and from the filesystem",
	RunE:  runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := mqtt.NewPahoBus(cfg.MQTT, logger.New("mqtt"))
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer b.Close()

	br, err := relay.NewBridge(cfg.Relay, b, clock.Real{}, logger.New("relay"))
	if err != nil {
		return err
	}
	return br.Run(ctx)
}
