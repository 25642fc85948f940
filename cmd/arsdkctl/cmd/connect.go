package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Discover, handshake and connect to --product, then idle until interrupted",
	RunE: func(c *cobra.Command, args []string) error {
		tel, err := newTelemetry()
		if err != nil {
			return err
		}
		defer tel.Log.Sync() //nolint:errcheck

		serveMetrics(tel, metricsAddr)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		dev, err := connectDevice(ctx, tel)
		cancel()
		if err != nil {
			return err
		}
		defer dev.Stop()

		fmt.Println("connected; press Ctrl-C to disconnect")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}
