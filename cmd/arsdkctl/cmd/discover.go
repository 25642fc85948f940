package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/postmannen/arsdk-go/config"
	"github.com/postmannen/arsdk-go/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Locate a device of --product on the LAN via mDNS and print its address",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		_, id, err := productDevice(nil, nil, product, cfg.Buffers[product])
		if err != nil {
			return err
		}
		if deviceID != "" {
			id = deviceID
		}

		locator := discovery.NewZeroconf(cfg.Discovery.CacheTTL, cfg.Discovery.BrowseTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Discovery.BrowseTimeout)
		defer cancel()

		found, err := locator.Locate(ctx, id)
		if err != nil {
			return err
		}

		fmt.Printf("%s\t%s\t%s:%d\n", found.DeviceID, found.Name, found.IP, found.Port)
		return nil
	},
}
