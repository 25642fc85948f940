package device

import (
	"github.com/postmannen/arsdk-go/internal/codec"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

// MamboBuffers is Mambo's stock buffer convention: ack=11, non-ack=10, no
// high-priority buffer.
func MamboBuffers() BufferConfig {
	return BufferConfig{NonAck: 10, Ack: 11, CommandData: []uint8{126, 127}}
}

// NewMambo builds a Device wired for MamboBuffers.
func NewMambo(codecC *codec.Codec, tel *telemetry.Telemetry) *Device {
	return NewWithBuffers(codecC, MamboBuffers(), tel)
}

// BringUpMambo runs the common bring-up profile with no device-specific
// initialization afterwards.
func (d *Device) BringUpMambo() error {
	return d.bringUpCommon("common", false)
}
