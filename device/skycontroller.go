package device

import (
	"github.com/postmannen/arsdk-go/internal/codec"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

// SkyControllerBuffers is SkyController's stock buffer convention: the same
// as Bebop (ack=11, non-ack=10, high-priority=12).
func SkyControllerBuffers() BufferConfig {
	return BufferConfig{NonAck: 10, Ack: 11, HasHighPrio: true, HighPrio: 12, CommandData: []uint8{126, 127}}
}

// NewSkyController builds a Device wired for SkyControllerBuffers, but its
// bring-up uses the skyctrl.* project names and skips the date/time
// commands.
func NewSkyController(codecC *codec.Codec, tel *telemetry.Telemetry) *Device {
	return NewWithBuffers(codecC, SkyControllerBuffers(), tel)
}

// BringUpSkyController runs the bring-up profile against the skyctrl.*
// projects, skipping CurrentDate/CurrentTime (the controller has no
// onboard clock to set).
func (d *Device) BringUpSkyController() error {
	return d.bringUpCommon("skyctrl", true)
}
