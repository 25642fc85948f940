// Package cmd holds the arsdkctl cobra command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath  string
	product     string
	deviceID    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "arsdkctl",
	Short: "Discover, connect to, and fly Parrot ARSDK devices",
}

// Execute runs the command tree; main only needs to report a non-nil
// error and exit non-zero.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an arsdkctl profile (YAML/JSON)")
	rootCmd.PersistentFlags().StringVar(&product, "product", "bebop", "bebop, bebop2, jumpingsumo, skycontroller, or mambo")
	rootCmd.PersistentFlags().StringVar(&deviceID, "device-id", "", "override the mDNS device id used for discovery")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on, e.g. :9090 (empty disables)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(flyCmd)
	rootCmd.AddCommand(stateCmd)
}
