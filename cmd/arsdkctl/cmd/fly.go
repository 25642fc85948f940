package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// pcmdInterval mirrors the 50ms cadence the reference controller uses for
// its piloting command scheduler: sending PCMD faster doesn't help and
// sending it slower starves the drone's control loop.
const pcmdInterval = 50 * time.Millisecond

var flyCmd = &cobra.Command{
	Use:   "fly",
	Short: "Connect to --product and fly it from the keyboard",
	Long: `Keys:
  t          take off
  l          land
  e          emergency cut
  arrow keys nudge roll/pitch for one command interval
  esc        land and quit

Sends the piloting feature's PCMD command on a fixed cadence, so
--product must be a flier that accepts it (bebop, bebop2, skycontroller;
mambo has no mDNS locator here, so connecting to it fails). Jumping Sumo
is ground-based and drives through jpsumo.Piloting.Posture instead.`,
	RunE: runFly,
}

func runFly(c *cobra.Command, args []string) error {
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

	keysEvents, err := keyboard.GetKeys(10)
	if err != nil {
		return err
	}
	defer keyboard.Close() //nolint:errcheck

	fmt.Println("flying; t=takeoff l=land e=emergency arrows=roll/pitch esc=quit")

	var roll, pitch int8
	var pcmdSeq uint8
	ticker := time.NewTicker(pcmdInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-keysEvents:
			if event.Err != nil {
				return event.Err
			}
			switch {
			case event.Key == keyboard.KeyEsc:
				_, _ = dev.Land()
				return nil
			case event.Rune == 't':
				_, _ = dev.TakeOff()
			case event.Rune == 'l':
				_, _ = dev.Land()
			case event.Rune == 'e':
				_, _ = dev.Emergency()
			case event.Key == keyboard.KeyArrowUp:
				pitch = clampPcmd(pitch, 20)
			case event.Key == keyboard.KeyArrowDown:
				pitch = clampPcmd(pitch, -20)
			case event.Key == keyboard.KeyArrowRight:
				roll = clampPcmd(roll, 20)
			case event.Key == keyboard.KeyArrowLeft:
				roll = clampPcmd(roll, -20)
			}

		case <-ticker.C:
			flags := uint8(0)
			if roll != 0 || pitch != 0 {
				flags = 1
			}

			// timestampAndSeqNum packs the command timestamp in milliseconds
			// into the low 24 bits and a wrapping command sequence number
			// into the high 8 bits; yaw/gaz stay at 0 since this console has
			// no input bound to them yet.
			tsAndSeq := (uint32(time.Now().UnixMilli()) & 0x00ffffff) | uint32(pcmdSeq)<<24
			pcmdSeq++

			if _, err := dev.Send("piloting", "", "PCMD", flags, roll, pitch, int8(0), int8(0), tsAndSeq); err != nil {
				tel.Log.Warn("PCMD send failed", zap.Error(err))
			}
			// Piloting inputs decay back to neutral each tick, same as
			// releasing a joystick: holding a key is what keeps moving it.
			roll, pitch = 0, 0
		}
	}
}

func clampPcmd(current, delta int8) int8 {
	v := int(current) + int(delta)
	switch {
	case v > 100:
		return 100
	case v < -100:
		return -100
	default:
		return int8(v)
	}
}
