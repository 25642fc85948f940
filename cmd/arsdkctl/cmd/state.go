package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/postmannen/arsdk-go/device"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

var stateWaitTimeout time.Duration

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect device state after connecting and running bring-up",
}

var stateDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Connect and print the entire state snapshot as JSON",
	RunE: func(c *cobra.Command, args []string) error {
		dev, tel, err := connectForState()
		if err != nil {
			return err
		}
		defer dev.Stop()
		defer tel.Log.Sync() //nolint:errcheck

		out, err := json.MarshalIndent(dev.Snapshot(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var stateGetCmd = &cobra.Command{
	Use:   "get <project.class.command>",
	Short: "Connect and print one state slot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		dev, tel, err := connectForState()
		if err != nil {
			return err
		}
		defer dev.Stop()
		defer tel.Log.Sync() //nolint:errcheck

		v, ok := dev.Get(args[0])
		if !ok {
			return fmt.Errorf("slot %q is unset", args[0])
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var stateWaitCmd = &cobra.Command{
	Use:   "wait <project.class.command>",
	Short: "Connect and block until a state slot is set or the wait times out",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		dev, tel, err := connectForState()
		if err != nil {
			return err
		}
		defer dev.Stop()
		defer tel.Log.Sync() //nolint:errcheck

		if !dev.WaitFor(args[0], stateWaitTimeout) {
			return fmt.Errorf("timed out waiting for %q", args[0])
		}
		fmt.Printf("%s arrived\n", args[0])
		return nil
	},
}

func connectForState() (*device.Device, *telemetry.Telemetry, error) {
	tel, err := newTelemetry()
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	dev, err := connectDevice(ctx, tel)
	if err != nil {
		return nil, nil, err
	}
	return dev, tel, nil
}

func init() {
	stateWaitCmd.Flags().DurationVar(&stateWaitTimeout, "timeout", 5*time.Second, "how long to wait before giving up")

	stateCmd.AddCommand(stateDumpCmd)
	stateCmd.AddCommand(stateGetCmd)
	stateCmd.AddCommand(stateWaitCmd)
}
