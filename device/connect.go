package device

import (
	"context"
	"fmt"

	"github.com/postmannen/arsdk-go/internal/network"
	"github.com/postmannen/arsdk-go/internal/telemetry"

	"github.com/postmannen/arsdk-go/discovery"
	"github.com/postmannen/arsdk-go/handshake"
)

// ControllerType and ControllerName identify this SDK to a device during
// the handshake.
const (
	ControllerType = "go-arsdk"
	ControllerName = "arsdkctl"
)

// localD2CPort is the controller-side UDP port proposed during the
// handshake; 43210 matches the port the reference controllers use.
const localD2CPort = 43210

// Connect locates deviceID via locator, negotiates UDP ports with it over
// negotiator, dials the ARNetwork channel, and attaches dev as its
// listener. On success dev is ready to Send. Connect does not run any
// bring-up sequence; the caller runs it (BringUpBebop et al.) afterwards.
//
// dev must already be built (via NewBebop et al.) but must not have had
// SetChannel called; Connect performs that wiring itself, the same
// self-referential order network.Dial uses internally.
func Connect(ctx context.Context, locator discovery.Locator, negotiator handshake.Negotiator, deviceID string, dev *Device, tel *telemetry.Telemetry) error {
	found, err := locator.Locate(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("locate device %s: %w", deviceID, err)
	}

	resp, err := negotiator.Negotiate(ctx, found.IP, found.Port, handshake.Request{
		D2CPort:        localD2CPort,
		ControllerType: ControllerType,
		ControllerName: ControllerName,
		DeviceID:       deviceID,
	})
	if err != nil {
		return fmt.Errorf("negotiate with %s at %s: %w", deviceID, found.IP, err)
	}

	ch, err := network.Dial(found.IP, resp.C2DPort, localD2CPort, dev.SendBuffers(), dev.RecvBuffers(), dev, tel)
	if err != nil {
		return fmt.Errorf("dial channel to %s: %w", found.IP, err)
	}
	dev.SetChannel(ch)

	return nil
}
