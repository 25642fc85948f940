package device

import (
	"github.com/postmannen/arsdk-go/internal/codec"
	"github.com/postmannen/arsdk-go/internal/network"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

// JumpingSumoBuffers is the Jumping Sumo family's stock buffer convention:
// ack=11, non-ack=10, no high-priority buffer, command data on 126/127.
func JumpingSumoBuffers() BufferConfig {
	return BufferConfig{NonAck: 10, Ack: 11, CommandData: []uint8{126, 127}}
}

// NewJumpingSumo builds a Device wired for JumpingSumoBuffers.
func NewJumpingSumo(codecC *codec.Codec, tel *telemetry.Telemetry) *Device {
	return NewWithBuffers(codecC, JumpingSumoBuffers(), tel)
}

// BringUpJumpingSumo runs the common bring-up profile, then disables the
// video stream the product enables by default.
func (d *Device) BringUpJumpingSumo() error {
	if err := d.bringUpCommon("common", false); err != nil {
		return err
	}
	_, err := d.Send("jpsumo", "MediaStreaming", "VideoEnable", uint8(0))
	return err
}

// ChangePosture sets the robot's posture (e.g. "standing", "jumper").
func (d *Device) ChangePosture(posture string) (network.Status, error) {
	return d.Send("jpsumo", "Piloting", "Posture", posture)
}

// ChangeVolume sets the speaker volume, 0-100.
func (d *Device) ChangeVolume(volume uint8) (network.Status, error) {
	return d.Send("jpsumo", "AudioSettings", "Volume", volume)
}

// Jump triggers a jump of the given type.
func (d *Device) Jump(jumpType string) (network.Status, error) {
	return d.Send("jpsumo", "Animations", "Jump", jumpType)
}
